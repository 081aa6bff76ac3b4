package cache

import (
	"net/http"
	"time"
)

// CacheEntry is an immutable snapshot of a response stored under one
// generation.
type CacheEntry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Headers are the response headers
	Headers http.Header `json:"headers"`

	// Method and URL identify the request the response answered
	Method string `json:"method"`
	URL    string `json:"url"`

	// Generation is the cache generation the entry was written to
	Generation string `json:"generation"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// Clone returns a deep copy of the entry. Backends hand out clones so a
// caller can never mutate stored bytes.
func (e *CacheEntry) Clone() *CacheEntry {
	if e == nil {
		return nil
	}
	out := *e
	if e.Data != nil {
		out.Data = append([]byte(nil), e.Data...)
	}
	out.Headers = e.Headers.Clone()
	return &out
}

// Size returns the number of body bytes held by the entry.
func (e *CacheEntry) Size() int {
	if e == nil {
		return 0
	}
	return len(e.Data)
}

// Key returns the cache key the entry was stored under.
func (e *CacheEntry) Key() CacheKey {
	return ParseKey(e.Method, e.URL)
}
