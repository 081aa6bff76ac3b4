package precache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/odam-offline-cache/internal/testutil"
	"github.com/Sternrassler/odam-offline-cache/pkg/cache"
	"github.com/Sternrassler/odam-offline-cache/pkg/client"
)

// stubFetcher answers from a map and tracks peak concurrency.
type stubFetcher struct {
	mu      sync.Mutex
	bodies  map[string]string
	fail    map[string]error
	delay   time.Duration
	active  atomic.Int32
	peak    atomic.Int32
	fetched []string
}

func (s *stubFetcher) FetchAsset(ctx context.Context, path string) (*http.Response, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	s.fetched = append(s.fetched, path)
	err := s.fail[path]
	body := s.bodies[path]
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func sitePaths() []string {
	paths := make([]string, 0, len(testutil.SiteAssets))
	for p := range testutil.SiteAssets {
		paths = append(paths, p)
	}
	return paths
}

func TestNew_Defaults(t *testing.T) {
	p := New(&stubFetcher{}, Config{})
	if p.config.MaxConcurrency != 6 {
		t.Errorf("MaxConcurrency = %d, want 6", p.config.MaxConcurrency)
	}
	if p.config.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", p.config.Timeout)
	}
}

func TestFetchAll_Success(t *testing.T) {
	origin := testutil.NewSiteOrigin()
	defer origin.Close()

	c, err := client.New(client.DefaultConfig(origin.URL()))
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	p := New(c, DefaultConfig())
	assets, err := p.FetchAll(context.Background(), sitePaths())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if len(assets) != len(testutil.SiteAssets) {
		t.Fatalf("assets = %d, want %d", len(assets), len(testutil.SiteAssets))
	}
	for path, want := range testutil.SiteAssets {
		got, ok := assets[path]
		if !ok {
			t.Errorf("missing asset %s", path)
			continue
		}
		if string(got.Data) != want.Body {
			t.Errorf("%s body = %q, want %q", path, got.Data, want.Body)
		}
		if got.URL != path || got.Method != http.MethodGet {
			t.Errorf("%s entry identifies %s %s", path, got.Method, got.URL)
		}
	}
}

func TestFetchAll_FailFast(t *testing.T) {
	origin := testutil.NewSiteOrigin()
	defer origin.Close()
	origin.SetResponse("/logo.jpg", testutil.MockResponse{StatusCode: http.StatusNotFound})

	c, _ := client.New(client.DefaultConfig(origin.URL()))
	p := New(c, DefaultConfig())

	assets, err := p.FetchAll(context.Background(), sitePaths())
	if err == nil {
		t.Fatal("FetchAll() should fail when one asset is missing")
	}
	if assets != nil {
		t.Error("no assets may be returned for a failed run")
	}

	var assetErr *AssetError
	if !errors.As(err, &assetErr) {
		t.Fatalf("error = %v, want *AssetError", err)
	}
	if assetErr.Path != "/logo.jpg" {
		t.Errorf("Path = %s, want /logo.jpg", assetErr.Path)
	}
	var fe *client.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusNotFound {
		t.Errorf("error should wrap the 404 FetchError, got %v", err)
	}
}

func TestFetchAll_BoundedConcurrency(t *testing.T) {
	bodies := make(map[string]string)
	paths := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		p := "/asset-" + string(rune('a'+i))
		bodies[p] = p
		paths = append(paths, p)
	}
	stub := &stubFetcher{bodies: bodies, delay: 5 * time.Millisecond}

	p := New(stub, Config{MaxConcurrency: 3, Timeout: time.Second})
	if _, err := p.FetchAll(context.Background(), paths); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if peak := stub.peak.Load(); peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
}

func TestFetchAll_DeduplicatesPaths(t *testing.T) {
	stub := &stubFetcher{bodies: map[string]string{"/": "home"}}
	p := New(stub, DefaultConfig())

	assets, err := p.FetchAll(context.Background(), []string{"/", "/", "/"})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(assets) != 1 || len(stub.fetched) != 1 {
		t.Errorf("assets = %d, fetches = %d; want 1 and 1", len(assets), len(stub.fetched))
	}
}

func TestFetchAll_Timeout(t *testing.T) {
	stub := &stubFetcher{bodies: map[string]string{"/": "home"}, delay: time.Second}
	p := New(stub, Config{MaxConcurrency: 1, Timeout: 10 * time.Millisecond})

	_, err := p.FetchAll(context.Background(), []string{"/"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestFetchAll_Empty(t *testing.T) {
	p := New(&stubFetcher{}, DefaultConfig())
	assets, err := p.FetchAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(assets) != 0 {
		t.Errorf("assets = %d, want 0", len(assets))
	}
}

func TestAssets_Entries(t *testing.T) {
	assets := Assets{
		"/":           {Data: []byte("home")},
		"/styles.css": {Data: []byte("css")},
	}
	entries := assets.Entries()

	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if e := entries[cache.ParseKey("GET", "/styles.css")]; e == nil || string(e.Data) != "css" {
		t.Errorf("entry for /styles.css = %v", e)
	}
}

func TestAssetError(t *testing.T) {
	inner := errors.New("boom")
	err := &AssetError{Path: "/x", Err: inner}
	if err.Error() != "precache /x: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("AssetError should unwrap to its cause")
	}
}
