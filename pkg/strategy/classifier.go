package strategy

import (
	"net/http"
	"net/url"
	"strings"
)

// DestinationHeader carries the resource type the browser is requesting.
const DestinationHeader = "Sec-Fetch-Dest"

// Request destinations the classifier distinguishes.
const (
	DestinationImage  = "image"
	DestinationStyle  = "style"
	DestinationScript = "script"
)

// DefaultAPIPrefix is the reserved path prefix of the site's API.
const DefaultAPIPrefix = "/api/"

// Kind is the caching category of a request.
type Kind string

const (
	KindCritical Kind = "CRITICAL"
	KindAssets   Kind = "ASSETS"
	KindImages   Kind = "IMAGES"
	KindAPI      Kind = "API"
)

// Classifier maps a request to its Kind. It holds only deploy-time
// configuration and is safe for concurrent use.
type Classifier struct {
	critical  map[string]struct{}
	apiPrefix string
}

// NewClassifier creates a classifier for the given critical asset paths.
// An empty apiPrefix selects DefaultAPIPrefix.
func NewClassifier(criticalAssets []string, apiPrefix string) *Classifier {
	if apiPrefix == "" {
		apiPrefix = DefaultAPIPrefix
	}
	critical := make(map[string]struct{}, len(criticalAssets))
	for _, p := range criticalAssets {
		critical[p] = struct{}{}
	}
	return &Classifier{critical: critical, apiPrefix: apiPrefix}
}

// Classify returns the Kind for a request URL and destination. The first
// matching rule wins:
//
//  1. path is a critical asset → CRITICAL
//  2. destination is "image" → IMAGES
//  3. path starts with the API prefix → API
//  4. destination is "style" or "script" → ASSETS
//  5. anything else → ASSETS
func (c *Classifier) Classify(u *url.URL, destination string) Kind {
	path := "/"
	if u != nil && u.Path != "" {
		path = u.Path
	}

	switch {
	case c.IsCritical(path):
		return KindCritical
	case destination == DestinationImage:
		return KindImages
	case strings.HasPrefix(path, c.apiPrefix):
		return KindAPI
	case destination == DestinationStyle, destination == DestinationScript:
		return KindAssets
	default:
		return KindAssets
	}
}

// ClassifyRequest classifies r using its Sec-Fetch-Dest header.
func (c *Classifier) ClassifyRequest(r *http.Request) Kind {
	return c.Classify(r.URL, Destination(r))
}

// IsCritical reports whether path is one of the critical assets.
func (c *Classifier) IsCritical(path string) bool {
	_, ok := c.critical[path]
	return ok
}

// Destination returns the lower-cased request destination, or "" when the
// client did not declare one.
func Destination(r *http.Request) string {
	return strings.ToLower(strings.TrimSpace(r.Header.Get(DestinationHeader)))
}
