package strategy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/odam-offline-cache/pkg/cache"
	"github.com/Sternrassler/odam-offline-cache/pkg/client"
)

const testGeneration = "odam-music-v3.0.0"

// fakeFetcher is an in-process network. Paths without a body answer 404.
type fakeFetcher struct {
	mu       sync.Mutex
	bodies   map[string]string
	status   map[string]int
	offline  bool
	calls    map[string]int
	inFlight int
	gate     chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		bodies: make(map[string]string),
		status: make(map[string]int),
		calls:  make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.calls[req.URL.Path]++
	f.inFlight++
	gate := f.gate
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.offline {
		return nil, &client.FetchError{
			ErrorClass: client.ErrorClassNetwork,
			Message:    "fetch " + req.URL.RequestURI(),
			Err:        errors.New("dial tcp: connection refused"),
		}
	}

	body, ok := f.bodies[req.URL.Path]
	status := f.status[req.URL.Path]
	if status == 0 {
		status = http.StatusOK
		if !ok {
			status = http.StatusNotFound
			body = "not found"
		}
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func (f *fakeFetcher) set(path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[path] = body
	delete(f.status, path)
}

func (f *fakeFetcher) setStatus(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[path] = status
}

func (f *fakeFetcher) setOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

func (f *fakeFetcher) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeFetcher) inFlightCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

func newTestRuntime(t *testing.T, fetcher client.Fetcher) *Runtime {
	t.Helper()
	store := cache.NewStore(cache.NewMemoryStorage(), zerolog.Nop())
	handle, err := store.Open(context.Background(), testGeneration)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return &Runtime{
		Store:   store,
		Cache:   handle,
		Fetcher: fetcher,
		Tasks:   NewTasks(0, 0, zerolog.Nop()),
		Logger:  zerolog.Nop(),
	}
}

func newRequest(method, target, destination string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if destination != "" {
		req.Header.Set(DestinationHeader, destination)
	}
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func execute(t *testing.T, rt *Runtime, s Strategy, req *http.Request) string {
	t.Helper()
	resp, err := s.Execute(context.Background(), rt, req)
	if err != nil {
		t.Fatalf("%s Execute() error = %v", s.Name(), err)
	}
	return readBody(t, resp)
}

func cached(t *testing.T, rt *Runtime, uri string) (string, bool) {
	t.Helper()
	entry, ok := rt.Cache.Match(context.Background(), cache.ParseKey(http.MethodGet, uri))
	if !ok {
		return "", false
	}
	return string(entry.Data), true
}
