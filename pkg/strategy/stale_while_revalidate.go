package strategy

import (
	"context"
	"net/http"

	"github.com/Sternrassler/odam-offline-cache/pkg/cache"
	"github.com/Sternrassler/odam-offline-cache/pkg/client"
)

// StaleWhileRevalidate answers from the worker's generation immediately and
// refreshes the entry in the background; refresh failures are silent. On a
// miss the network answer is the response.
type StaleWhileRevalidate struct{}

func (StaleWhileRevalidate) Name() Name { return NameStaleWhileRevalidate }

func (StaleWhileRevalidate) Execute(ctx context.Context, rt *Runtime, req *http.Request) (*http.Response, error) {
	key := cache.KeyFromRequest(req)

	if entry, ok := rt.Cache.Match(ctx, key); ok {
		rt.revalidate(ctx, req, key)
		return cache.EntryToResponse(entry, req), nil
	}

	resp, err := rt.Fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if client.IsOK(resp) {
		rt.store(ctx, key, resp)
	}
	return resp, nil
}
