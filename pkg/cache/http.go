package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// SourceHeader tells the page where a response came from.
	SourceHeader = "X-Offline-Cache"

	// SourceHit marks responses replayed from the cache.
	SourceHit = "hit"
)

// ResponseToEntry converts an HTTP response to a CacheEntry.
// The response body is restored after reading, so the caller can still
// return the live response after the snapshot was taken.
func ResponseToEntry(resp *http.Response) (*CacheEntry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	var body []byte
	if resp.Body != nil {
		b, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		body = b
	}

	// Restore body for caller
	resp.Body = io.NopCloser(bytes.NewReader(body))

	entry := &CacheEntry{
		Data:       body,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		CachedAt:   time.Now(),
	}
	if entry.Headers == nil {
		entry.Headers = make(http.Header)
	}
	entry.Headers.Del("Content-Length")
	entry.Headers.Del("Set-Cookie")
	entry.Headers.Del(SourceHeader)
	if resp.Request != nil {
		key := KeyFromRequest(resp.Request)
		entry.Method = key.Method
		entry.URL = key.URI()
	}

	return entry, nil
}

// Shareable reports whether resp may be replayed to other clients. Partial
// content, responses that set cookies and responses marked no-store or
// private are kept out of the cache; reason names the first rule that
// matched.
func Shareable(resp *http.Response) (ok bool, reason string) {
	if resp.StatusCode == http.StatusPartialContent {
		return false, "partial content"
	}
	if len(resp.Header.Values("Set-Cookie")) > 0 {
		return false, "sets cookies"
	}
	for _, v := range resp.Header.Values("Cache-Control") {
		for _, d := range strings.Split(v, ",") {
			d = strings.ToLower(strings.TrimSpace(d))
			switch {
			case d == "no-store":
				return false, "no-store"
			case d == "private", strings.HasPrefix(d, "private="):
				return false, "private"
			}
		}
	}
	return true, ""
}

// EntryToResponse builds a fresh response from a cached snapshot. Every
// call gets its own body reader.
func EntryToResponse(entry *CacheEntry, req *http.Request) *http.Response {
	header := entry.Headers.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set(SourceHeader, SourceHit)
	header.Set("Content-Length", strconv.Itoa(len(entry.Data)))

	status := entry.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Data)),
		ContentLength: int64(len(entry.Data)),
		Request:       req,
	}
}
