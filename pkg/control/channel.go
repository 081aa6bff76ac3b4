// Package control implements the proxy's control channel: structured
// messages that force an update, report or clear the cache, plus the
// background-sync and push-notification side channels.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/odam-offline-cache/pkg/worker"
)

// Message types accepted by the channel.
const (
	TypeSkipWaiting    = "SKIP_WAITING"
	TypeGetCacheStatus = "GET_CACHE_STATUS"
	TypeClearCache     = "CLEAR_CACHE"
)

// Reply types sent back to the caller.
const (
	TypeCacheStatus  = "CACHE_STATUS"
	TypeCacheCleared = "CACHE_CLEARED"
)

// ErrInvalidPayload is returned for messages or push payloads that cannot
// be decoded.
var ErrInvalidPayload = errors.New("invalid payload")

// Message is a control request from a page.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply is the answer to a message that expects one.
type Reply struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Target is what the control channel acts on.
type Target interface {
	SkipWaiting(ctx context.Context) error
	CacheStatus(ctx context.Context) (worker.CacheStatus, error)
	ClearCache(ctx context.Context) error
}

// Channel dispatches control messages, sync tasks and push events.
type Channel struct {
	target   Target
	notifier Notifier
	logger   zerolog.Logger

	mu    sync.RWMutex
	syncs map[string]SyncFunc
}

// NewChannel creates a channel acting on target. A nil notifier selects an
// in-memory Inbox. The background-sync tag starts with a hook that only
// logs; replace it with OnSync.
func NewChannel(target Target, notifier Notifier, logger zerolog.Logger) *Channel {
	if notifier == nil {
		notifier = NewInbox(DefaultInboxSize)
	}
	c := &Channel{
		target:   target,
		notifier: notifier,
		syncs:    make(map[string]SyncFunc),
		logger:   logger,
	}
	c.syncs[BackgroundSyncTag] = c.logSync
	return c
}

// Notifier returns the notifier push events are shown on.
func (c *Channel) Notifier() Notifier {
	return c.notifier
}

// Handle processes one message. It returns a nil Reply for messages that
// expect none, including unknown types, which are ignored.
func (c *Channel) Handle(ctx context.Context, msg Message) (*Reply, error) {
	switch msg.Type {
	case TypeSkipWaiting:
		err := c.target.SkipWaiting(ctx)
		if errors.Is(err, worker.ErrNoWaitingWorker) {
			c.logger.Debug().Msg("SKIP_WAITING with no waiting worker")
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("skip waiting: %w", err)
		}
		c.logger.Info().Msg("Waiting worker activated by message")
		return nil, nil

	case TypeGetCacheStatus:
		status, err := c.target.CacheStatus(ctx)
		if err != nil {
			return nil, fmt.Errorf("cache status: %w", err)
		}
		return &Reply{Type: TypeCacheStatus, Payload: status}, nil

	case TypeClearCache:
		if err := c.target.ClearCache(ctx); err != nil {
			return nil, fmt.Errorf("clear cache: %w", err)
		}
		return &Reply{Type: TypeCacheCleared}, nil

	default:
		c.logger.Debug().Str("type", msg.Type).Msg("Ignoring unknown control message")
		return nil, nil
	}
}

// DecodeMessage parses a JSON control message.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrInvalidPayload)
	}
	return msg, nil
}
