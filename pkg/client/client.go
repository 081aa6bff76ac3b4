// Package client forwards intercepted requests to the origin server and
// classifies what goes wrong on the way.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/odam-offline-cache/pkg/logging"
)

// Prometheus metrics for origin requests.
var (
	originRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_origin_requests_total",
		Help: "Total origin requests by status",
	}, []string{"status"})

	originRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "offline_origin_request_duration_seconds",
		Help:    "Origin request duration in seconds by method",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"method"})

	originErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_origin_errors_total",
		Help: "Total origin errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassUnexpected represents any other non-2xx status.
	ErrorClassUnexpected ErrorClass = "unexpected"
)

// Fetcher performs the network leg of a request.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Headers that describe a single connection and are never forwarded.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Client fetches from the origin server.
type Client struct {
	httpClient *http.Client
	origin     *url.URL
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Origin is the base URL every request is forwarded to
	// (e.g. "http://odam-site:8080").
	Origin string

	// Timeout bounds a single origin request.
	Timeout time.Duration

	// Retry applies to FetchAsset only; the request path never retries
	// so that offline fallbacks stay fast.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(origin string) Config {
	return Config{
		Origin:  origin,
		Timeout: 30 * time.Second,
		Retry:   DefaultRetryConfig(),
	}
}

// New creates a new origin client.
func New(cfg Config) (*Client, error) {
	if cfg.Origin == "" {
		return nil, fmt.Errorf("origin is required")
	}
	origin, err := url.Parse(strings.TrimRight(cfg.Origin, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if origin.Scheme != "http" && origin.Scheme != "https" {
		return nil, fmt.Errorf("origin must be an absolute http(s) URL (got %q)", cfg.Origin)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		origin: origin,
		config: cfg,
		logger: log.With().Str(logging.FieldComponent, "origin-client").Logger(),
	}, nil
}

// Origin returns the origin base URL.
func (c *Client) Origin() string {
	return c.origin.String()
}

// Fetch forwards req to the origin. Non-2xx responses are returned as
// responses; only transport failures produce an error, and those match
// ErrNetworkUnavailable.
func (c *Client) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	upstream, err := c.upstreamRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	startTime := time.Now()
	defer func() {
		originRequestDuration.WithLabelValues(upstream.Method).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("method", upstream.Method).
		Str("url", upstream.URL.String()).
		Msg("Fetching from origin")

	resp, err := c.httpClient.Do(upstream)
	if err != nil {
		errClass := c.classifyError(nil, err)
		originErrorsTotal.WithLabelValues(string(errClass)).Inc()
		originRequestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Warn().Err(err).Str(logging.FieldPath, req.URL.Path).Msg("Origin request failed")
		return nil, &FetchError{
			ErrorClass: ErrorClassNetwork,
			Message:    "fetch " + req.URL.RequestURI(),
			Err:        err,
		}
	}

	originRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	if !IsOK(resp) {
		errClass := c.classifyError(resp, nil)
		originErrorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Debug().
			Str(logging.FieldPath, req.URL.Path).
			Int(logging.FieldStatusCode, resp.StatusCode).
			Str(logging.FieldErrorClass, string(errClass)).
			Msg("Origin returned non-2xx")
	}

	// Give the response the page-side request so cache keys derive from it.
	resp.Request = req
	return resp, nil
}

// FetchAsset GETs a root-relative path with retries and requires a 2xx
// answer. It is used to pre-warm critical assets.
func (c *Client) FetchAsset(ctx context.Context, path string) (*http.Response, error) {
	// A page-side request: Fetch resolves it against the origin.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var resp *http.Response
	err = retryWithBackoff(ctx, c.config.Retry, func() (ErrorClass, error) {
		r, fetchErr := c.Fetch(ctx, req)
		if fetchErr != nil {
			return ErrorClassNetwork, fetchErr
		}
		if statusErr := StatusError(r); statusErr != nil {
			io.Copy(io.Discard, r.Body)
			r.Body.Close()
			return statusErr.ErrorClass, statusErr
		}
		resp = r
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) upstreamRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	target := *c.origin
	target.Path = c.origin.Path + req.URL.Path
	target.RawPath = ""
	target.RawQuery = req.URL.RawQuery

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead && req.Body != nil && req.Body != http.NoBody {
		body = req.Body
	}

	upstream, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		upstream.ContentLength = req.ContentLength
	}
	copyHeaders(upstream.Header, req.Header)
	upstream.Header.Set("Accept-Encoding", "identity")
	return upstream, nil
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		if strings.EqualFold(k, "Host") || isHopByHop(k) {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func isHopByHop(name string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

// classifyError categorizes a failure for observability and retries.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}
	return classifyStatus(resp.StatusCode)
}

func classifyStatus(status int) ErrorClass {
	switch {
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassUnexpected
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
