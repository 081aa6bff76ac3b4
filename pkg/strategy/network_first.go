package strategy

import (
	"context"
	"net/http"

	"github.com/Sternrassler/odam-offline-cache/pkg/cache"
	"github.com/Sternrassler/odam-offline-cache/pkg/client"
	"github.com/Sternrassler/odam-offline-cache/pkg/logging"
)

// NetworkFirst asks the network first and stores every 2xx answer. When
// the network fails or answers non-2xx it falls back to the cache; with
// nothing cached the failure is returned.
type NetworkFirst struct{}

func (NetworkFirst) Name() Name { return NameNetworkFirst }

func (NetworkFirst) Execute(ctx context.Context, rt *Runtime, req *http.Request) (*http.Response, error) {
	key := cache.KeyFromRequest(req)

	resp, err := rt.Fetcher.Fetch(ctx, req)
	if err == nil && client.IsOK(resp) {
		rt.store(ctx, key, resp)
		return resp, nil
	}

	var failure error = err
	if err == nil {
		failure = client.StatusError(resp)
		discard(resp)
	}

	if entry, ok := rt.Store.Match(ctx, key); ok {
		rt.Logger.Debug().
			Err(failure).
			Str(logging.FieldKey, key.String()).
			Msg("Network failed, serving cached response")
		return cache.EntryToResponse(entry, req), nil
	}
	return nil, failure
}
