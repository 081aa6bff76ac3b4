package control

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/odam-offline-cache/pkg/logging"
)

// BackgroundSyncTag is the sync task the site registers.
const BackgroundSyncTag = "background-sync"

// SyncFunc reconciles data once connectivity returns.
type SyncFunc func(ctx context.Context) error

// OnSync registers fn for tag, replacing any previous hook.
func (c *Channel) OnSync(tag string, fn SyncFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncs[tag] = fn
}

// Sync runs the hook registered for tag and waits for it. Unknown tags are
// ignored.
func (c *Channel) Sync(ctx context.Context, tag string) error {
	c.mu.RLock()
	fn, ok := c.syncs[tag]
	c.mu.RUnlock()
	if !ok {
		c.logger.Debug().Str(logging.FieldTag, tag).Msg("Ignoring unknown sync tag")
		return nil
	}

	start := time.Now()
	if err := fn(ctx); err != nil {
		c.logger.Warn().Err(err).Str(logging.FieldTag, tag).Msg("Background sync failed")
		return fmt.Errorf("sync %s: %w", tag, err)
	}
	c.logger.Info().Str(logging.FieldTag, tag).Dur(logging.FieldDuration, time.Since(start)).Msg("Background sync complete")
	return nil
}

func (c *Channel) logSync(context.Context) error {
	c.logger.Info().Msg("Running background sync")
	return nil
}
