package worker

import (
	"io"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/odam-offline-cache/internal/testutil"
	"github.com/Sternrassler/odam-offline-cache/pkg/cache"
	"github.com/Sternrassler/odam-offline-cache/pkg/client"
)

const (
	genV3  = "odam-music-v3.0.0"
	genV31 = "odam-music-v3.1.0"
)

var criticalAssets = []string{
	"/",
	"/index.html",
	"/styles.css",
	"/script.js",
	"/global-config.js",
	"/logo.jpg",
	"/logo-192x192.png",
	"/logo-512x512.png",
	"/manifest.json",
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newOriginClient(t *testing.T, origin *testutil.MockOrigin) *client.Client {
	t.Helper()
	c, err := client.New(client.Config{
		Origin:  origin.URL(),
		Timeout: 5 * time.Second,
		Retry:   client.RetryConfig{MaxAttempts: 1},
	})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	return c
}

func newTestStore() *cache.Store {
	return cache.NewStore(cache.NewMemoryStorage(), testLogger())
}

func newTestWorker(t *testing.T, gen string, store *cache.Store, origin *testutil.MockOrigin) *Worker {
	t.Helper()
	w, err := New(Config{
		Generation:     gen,
		CriticalAssets: criticalAssets,
	}, store, newOriginClient(t, origin), testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return w
}

func generations(t *testing.T, store *cache.Store) []string {
	t.Helper()
	gens, err := store.Generations(t.Context())
	if err != nil {
		t.Fatalf("Generations() error = %v", err)
	}
	sort.Strings(gens)
	return gens
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}
