package cache

import (
	"net/http"
	"net/url"
	"strings"
)

// CacheKey identifies a cached response. Two requests share a key when
// they use the same method, path and query (query order does not matter).
// Keys are comparable and can be used as map keys.
type CacheKey struct {
	// Method is the HTTP method (only GET is cacheable)
	Method string

	// Path is the root-relative request path (e.g. "/index.html")
	Path string

	// Query is the encoded query string with sorted parameters
	Query string
}

// KeyFromRequest derives the cache key of an intercepted request.
func KeyFromRequest(r *http.Request) CacheKey {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	return CacheKey{
		Method: strings.ToUpper(method),
		Path:   path,
		Query:  normalizeQuery(r.URL.Query()),
	}
}

// ParseKey builds a key from a method and a root-relative URI such as
// "/index.html" or "/api/stats?range=7d".
func ParseKey(method, uri string) CacheKey {
	if method == "" {
		method = http.MethodGet
	}
	key := CacheKey{Method: strings.ToUpper(method), Path: uri}
	if u, err := url.ParseRequestURI(uri); err == nil {
		key.Path = u.Path
		key.Query = normalizeQuery(u.Query())
	}
	if key.Path == "" {
		key.Path = "/"
	}
	return key
}

// URI returns the root-relative URI of the key with a normalized
// (sorted) query string.
func (k CacheKey) URI() string {
	if k.Query == "" {
		return k.Path
	}
	return k.Path + "?" + k.Query
}

func normalizeQuery(v url.Values) string {
	if len(v) == 0 {
		return ""
	}
	return v.Encode()
}

// Cacheable reports whether responses for this key may be stored.
func (k CacheKey) Cacheable() bool {
	return k.Method == http.MethodGet
}

// String generates a deterministic cache key string.
// Format: METHOD URI
//
// Example:
//
//	GET /api/stats?range=7d
func (k CacheKey) String() string {
	return k.Method + " " + k.URI()
}
