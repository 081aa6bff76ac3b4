// Package testutil provides testing utilities for the offline proxy.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock origin path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// SiteAssets are the ODAM site's critical assets with small bodies.
var SiteAssets = map[string]MockResponse{
	"/":                 NewOKResponse("text/html", "<html>home</html>"),
	"/index.html":       NewOKResponse("text/html", "<html>home</html>"),
	"/styles.css":       NewOKResponse("text/css", "body{margin:0}"),
	"/script.js":        NewOKResponse("application/javascript", "console.log('odam')"),
	"/global-config.js": NewOKResponse("application/javascript", "window.ODAM_CONFIG={}"),
	"/logo.jpg":         NewOKResponse("image/jpeg", "jpeg-bytes"),
	"/logo-192x192.png": NewOKResponse("image/png", "png-192"),
	"/logo-512x512.png": NewOKResponse("image/png", "png-512"),
	"/manifest.json":    NewOKResponse("application/manifest+json", `{"name":"ODAM App"}`),
}

// MockOrigin is a configurable origin server for testing. It can be
// switched offline, in which case every connection is aborted.
type MockOrigin struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	offline  bool

	// Tracking
	requestCount int
	pathCount    map[string]int
}

// NewMockOrigin creates a new mock origin server. Unknown paths answer 404.
func NewMockOrigin() *MockOrigin {
	mock := &MockOrigin{
		handlers:  make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pathCount: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCount[r.URL.Path]++
		offline := mock.offline
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if offline {
			// Drop the connection without a response.
			panic(http.ErrAbortHandler)
		}
		if exists {
			handler(w, r)
			return
		}
		http.NotFound(w, r)
	}))

	return mock
}

// NewSiteOrigin creates a mock origin serving SiteAssets.
func NewSiteOrigin() *MockOrigin {
	m := NewMockOrigin()
	for path, resp := range SiteAssets {
		m.SetResponse(path, resp)
	}
	return m
}

// URL returns the mock server URL.
func (m *MockOrigin) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockOrigin) Close() {
	m.server.Close()
}

// SetOffline makes every following request fail at the network level.
func (m *MockOrigin) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// Reset clears all tracking counters.
func (m *MockOrigin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCount = make(map[string]int)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockOrigin) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockOrigin) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockOrigin) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// GetPathCount returns the number of requests made for path.
func (m *MockOrigin) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCount[path]
}

// NewOKResponse creates a 200 OK response with a content type.
func NewOKResponse(contentType, body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": contentType,
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
