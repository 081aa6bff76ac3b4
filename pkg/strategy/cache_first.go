package strategy

import (
	"context"
	"net/http"

	"github.com/Sternrassler/odam-offline-cache/pkg/cache"
	"github.com/Sternrassler/odam-offline-cache/pkg/client"
)

// CacheFirst answers from the cache when it can and refreshes the entry in
// the background. On a miss the network answer is stored before it is
// returned, so the next request finds it even offline.
type CacheFirst struct{}

func (CacheFirst) Name() Name { return NameCacheFirst }

func (CacheFirst) Execute(ctx context.Context, rt *Runtime, req *http.Request) (*http.Response, error) {
	key := cache.KeyFromRequest(req)

	if entry, ok := rt.Store.Match(ctx, key); ok {
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
