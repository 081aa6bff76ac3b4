package strategy

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/odam-offline-cache/pkg/cache"
	"github.com/Sternrassler/odam-offline-cache/pkg/client"
)

func TestNetworkFirst_StoresSuccessfulResponse(t *testing.T) {
	net := newFakeFetcher()
	net.set("/index.html", "<html>v1</html>")
	rt := newTestRuntime(t, net)

	body := execute(t, rt, NetworkFirst{}, newRequest("GET", "/index.html", "document"))
	if body != "<html>v1</html>" {
		t.Errorf("body = %q", body)
	}
	if got, ok := cached(t, rt, "/index.html"); !ok || got != "<html>v1</html>" {
		t.Errorf("cached = %q, %v; want stored copy", got, ok)
	}
}

func TestNetworkFirst_PrefersNetworkOverCache(t *testing.T) {
	net := newFakeFetcher()
	net.set("/api/stats", `{"plays":1}`)
	rt := newTestRuntime(t, net)
	execute(t, rt, NetworkFirst{}, newRequest("GET", "/api/stats", ""))

	net.set("/api/stats", `{"plays":2}`)
	if body := execute(t, rt, NetworkFirst{}, newRequest("GET", "/api/stats", "")); body != `{"plays":2}` {
		t.Errorf("body = %q, want latest network answer", body)
	}
	if got, _ := cached(t, rt, "/api/stats"); got != `{"plays":2}` {
		t.Errorf("cached = %q, want overwritten entry", got)
	}
}

func TestNetworkFirst_OfflineServesCache(t *testing.T) {
	net := newFakeFetcher()
	net.set("/styles.css", "body{}")
	rt := newTestRuntime(t, net)
	execute(t, rt, NetworkFirst{}, newRequest("GET", "/styles.css", "style"))

	net.setOffline(true)
	resp, err := NetworkFirst{}.Execute(context.Background(), rt, newRequest("GET", "/styles.css", "style"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Header.Get(cache.SourceHeader) != cache.SourceHit {
		t.Error("offline response should come from the cache")
	}
	if body := readBody(t, resp); body != "body{}" {
		t.Errorf("body = %q, want cached entry", body)
	}
}

func TestNetworkFirst_OfflineColdFails(t *testing.T) {
	net := newFakeFetcher()
	net.setOffline(true)
	rt := newTestRuntime(t, net)

	_, err := NetworkFirst{}.Execute(context.Background(), rt, newRequest("GET", "/index.html", "document"))
	if !errors.Is(err, client.ErrNetworkUnavailable) {
		t.Errorf("error = %v, want ErrNetworkUnavailable", err)
	}
}

func TestNetworkFirst_NonOKFallsBackToCache(t *testing.T) {
	net := newFakeFetcher()
	net.set("/api/stats", "ok")
	rt := newTestRuntime(t, net)
	execute(t, rt, NetworkFirst{}, newRequest("GET", "/api/stats", ""))

	net.setStatus("/api/stats", http.StatusBadGateway)
	if body := execute(t, rt, NetworkFirst{}, newRequest("GET", "/api/stats", "")); body != "ok" {
		t.Errorf("body = %q, want cached entry", body)
	}
}

func TestNetworkFirst_NonOKWithoutCacheFails(t *testing.T) {
	net := newFakeFetcher()
	net.setStatus("/api/stats", http.StatusInternalServerError)
	rt := newTestRuntime(t, net)

	_, err := NetworkFirst{}.Execute(context.Background(), rt, newRequest("GET", "/api/stats", ""))
	var fe *client.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *client.FetchError", err)
	}
	if fe.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", fe.StatusCode)
	}
	if _, ok := cached(t, rt, "/api/stats"); ok {
		t.Error("non-2xx responses must not be cached")
	}
}

func TestNetworkFirst_PostIsNotCached(t *testing.T) {
	net := newFakeFetcher()
	net.set("/api/contact", "sent")
	rt := newTestRuntime(t, net)

	if body := execute(t, rt, NetworkFirst{}, newRequest("POST", "/api/contact", "")); body != "sent" {
		t.Errorf("body = %q", body)
	}
	gens, _ := rt.Store.Generations(context.Background())
	for _, gen := range gens {
		h, _ := rt.Store.Open(context.Background(), gen)
		if _, ok := h.Match(context.Background(), cache.ParseKey("GET", "/api/contact")); ok {
			t.Error("POST response must not be cached")
		}
	}
}

func TestCacheFirst_ColdThenOffline(t *testing.T) {
	net := newFakeFetcher()
	net.set("/img/studio.webp", "webp-bytes")
	rt := newTestRuntime(t, net)

	first := execute(t, rt, CacheFirst{}, newRequest("GET", "/img/studio.webp", "image"))
	if first != "webp-bytes" {
		t.Errorf("first response = %q, want network response", first)
	}

	net.setOffline(true)
	second := execute(t, rt, CacheFirst{}, newRequest("GET", "/img/studio.webp", "image"))
	if second != first {
		t.Errorf("offline response = %q, want previously cached %q", second, first)
	}
	rt.Tasks.Wait()
}

func TestCacheFirst_HitRefreshesInBackground(t *testing.T) {
	net := newFakeFetcher()
	net.set("/img/a.png", "old")
	rt := newTestRuntime(t, net)
	execute(t, rt, CacheFirst{}, newRequest("GET", "/img/a.png", "image"))

	net.set("/img/a.png", "new")
	if body := execute(t, rt, CacheFirst{}, newRequest("GET", "/img/a.png", "image")); body != "old" {
		t.Errorf("hit = %q, want cached bytes", body)
	}
	rt.Tasks.Wait()

	if got, _ := cached(t, rt, "/img/a.png"); got != "new" {
		t.Errorf("cached after refresh = %q, want new", got)
	}
}

func TestCacheFirst_RefreshIgnoresNonOK(t *testing.T) {
	net := newFakeFetcher()
	net.set("/img/a.png", "old")
	rt := newTestRuntime(t, net)
	execute(t, rt, CacheFirst{}, newRequest("GET", "/img/a.png", "image"))

	net.setStatus("/img/a.png", http.StatusNotFound)
	execute(t, rt, CacheFirst{}, newRequest("GET", "/img/a.png", "image"))
	rt.Tasks.Wait()

	if got, _ := cached(t, rt, "/img/a.png"); got != "old" {
		t.Errorf("cached = %q, want entry kept", got)
	}
}

func TestCacheFirst_MissReturnsNonOKUncached(t *testing.T) {
	net := newFakeFetcher()
	rt := newTestRuntime(t, net)

	resp, err := CacheFirst{}.Execute(context.Background(), rt, newRequest("GET", "/img/missing.png", "image"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	readBody(t, resp)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", resp.StatusCode)
	}
	if _, ok := cached(t, rt, "/img/missing.png"); ok {
		t.Error("404 must not be cached")
	}
}

func TestCacheFirst_MatchesOtherGenerations(t *testing.T) {
	net := newFakeFetcher()
	net.setOffline(true)
	rt := newTestRuntime(t, net)

	ctx := context.Background()
	old, _ := rt.Store.Open(ctx, "odam-music-v2.9.0")
	old.Put(ctx, cache.ParseKey("GET", "/img/a.png"), &cache.CacheEntry{Data: []byte("from-v2"), StatusCode: 200})

	if body := execute(t, rt, CacheFirst{}, newRequest("GET", "/img/a.png", "image")); body != "from-v2" {
		t.Errorf("body = %q, want entry from the older generation", body)
	}
	rt.Tasks.Wait()
}

func TestStaleWhileRevalidate_ServesStaleThenFresh(t *testing.T) {
	net := newFakeFetcher()
	net.set("/js/player.js", "E")
	rt := newTestRuntime(t, net)
	execute(t, rt, StaleWhileRevalidate{}, newRequest("GET", "/js/player.js", "script"))

	net.set("/js/player.js", "E'")
	if body := execute(t, rt, StaleWhileRevalidate{}, newRequest("GET", "/js/player.js", "script")); body != "E" {
		t.Errorf("immediate response = %q, want stale E", body)
	}

	rt.Tasks.Wait()

	net.setOffline(true)
	if body := execute(t, rt, StaleWhileRevalidate{}, newRequest("GET", "/js/player.js", "script")); body != "E'" {
		t.Errorf("follow-up response = %q, want revalidated E'", body)
	}
	rt.Tasks.Wait()
}

func TestStaleWhileRevalidate_RefreshErrorsAreSilent(t *testing.T) {
	net := newFakeFetcher()
	net.set("/css/extra.css", "a{}")
	rt := newTestRuntime(t, net)
	execute(t, rt, StaleWhileRevalidate{}, newRequest("GET", "/css/extra.css", "style"))

	net.setOffline(true)
	if body := execute(t, rt, StaleWhileRevalidate{}, newRequest("GET", "/css/extra.css", "style")); body != "a{}" {
		t.Errorf("body = %q", body)
	}
	rt.Tasks.Wait()

	if got, ok := cached(t, rt, "/css/extra.css"); !ok || got != "a{}" {
		t.Errorf("cached = %q, %v; want entry untouched", got, ok)
	}
}

func TestStaleWhileRevalidate_MissUsesNetwork(t *testing.T) {
	net := newFakeFetcher()
	net.set("/about.html", "about")
	rt := newTestRuntime(t, net)

	if body := execute(t, rt, StaleWhileRevalidate{}, newRequest("GET", "/about.html", "document")); body != "about" {
		t.Errorf("body = %q", body)
	}
	if got, _ := cached(t, rt, "/about.html"); got != "about" {
		t.Errorf("cached = %q, want network answer stored", got)
	}
	if n := net.callCount("/about.html"); n != 1 {
		t.Errorf("network calls = %d, want 1", n)
	}
}

func TestStaleWhileRevalidate_MissOfflineFails(t *testing.T) {
	net := newFakeFetcher()
	net.setOffline(true)
	rt := newTestRuntime(t, net)

	_, err := StaleWhileRevalidate{}.Execute(context.Background(), rt, newRequest("GET", "/about.html", ""))
	if !errors.Is(err, client.ErrNetworkUnavailable) {
		t.Errorf("error = %v, want ErrNetworkUnavailable", err)
	}
}

func TestPassThrough_NoCaching(t *testing.T) {
	net := newFakeFetcher()
	net.set("/download.zip", "zip")
	rt := newTestRuntime(t, net)

	if body := execute(t, rt, PassThrough{}, newRequest("GET", "/download.zip", "")); body != "zip" {
		t.Errorf("body = %q", body)
	}
	if _, ok := cached(t, rt, "/download.zip"); ok {
		t.Error("pass-through must not write the cache")
	}
}

func TestRevalidate_CollapsesConcurrentRefreshes(t *testing.T) {
	net := newFakeFetcher()
	net.set("/img/a.png", "v1")
	rt := newTestRuntime(t, net)
	execute(t, rt, CacheFirst{}, newRequest("GET", "/img/a.png", "image"))

	gate := make(chan struct{})
	net.mu.Lock()
	net.gate = gate
	net.mu.Unlock()

	before := net.callCount("/img/a.png")
	for i := 0; i < 2; i++ {
		execute(t, rt, CacheFirst{}, newRequest("GET", "/img/a.png", "image"))
	}

	deadline := time.Now().Add(2 * time.Second)
	for net.inFlightCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Give the second task time to join the in-flight refresh.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	rt.Tasks.Wait()

	if n := net.callCount("/img/a.png") - before; n != 1 {
		t.Errorf("background fetches = %d, want 1", n)
	}
}

func TestRun_ReportsSource(t *testing.T) {
	net := newFakeFetcher()
	net.set("/index.html", "home")
	rt := newTestRuntime(t, net)
	ctx := context.Background()

	resp, err := Run(ctx, rt, NetworkFirst{}, newRequest("GET", "/index.html", "document"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	readBody(t, resp)
	if sourceOf(resp) != "network" {
		t.Errorf("source = %s, want network", sourceOf(resp))
	}

	net.setOffline(true)
	resp, err = Run(ctx, rt, NetworkFirst{}, newRequest("GET", "/index.html", "document"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	readBody(t, resp)
	if sourceOf(resp) != "cache" {
		t.Errorf("source = %s, want cache", sourceOf(resp))
	}

	if _, err := Run(ctx, rt, NetworkFirst{}, newRequest("GET", "/api/none", "")); err == nil {
		t.Error("Run() should fail when neither network nor cache answers")
	}
}

func TestConcurrentWritesSameKey(t *testing.T) {
	net := newFakeFetcher()
	net.set("/api/stats", "x")
	rt := newTestRuntime(t, net)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := NetworkFirst{}.Execute(context.Background(), rt, newRequest("GET", "/api/stats", ""))
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	if got, ok := cached(t, rt, "/api/stats"); !ok || got != "x" {
		t.Errorf("cached = %q, %v", got, ok)
	}
}

func TestRuntime_FreezeStopsWrites(t *testing.T) {
	net := newFakeFetcher()
	net.set("/about.html", "about")
	rt := newTestRuntime(t, net)
	rt.Freeze()

	if body := execute(t, rt, StaleWhileRevalidate{}, newRequest("GET", "/about.html", "")); body != "about" {
		t.Errorf("body = %q", body)
	}
	if _, ok := cached(t, rt, "/about.html"); ok {
		t.Error("frozen runtime must not write the cache")
	}
}
