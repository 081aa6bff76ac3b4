package strategy

import (
	"context"
	"net/http"
)

// PassThrough forwards the request to the network without touching the
// cache.
type PassThrough struct{}

func (PassThrough) Name() Name { return NamePassThrough }

func (PassThrough) Execute(ctx context.Context, rt *Runtime, req *http.Request) (*http.Response, error) {
	return rt.Fetcher.Fetch(ctx, req)
}
