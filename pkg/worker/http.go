package worker

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/odam-offline-cache/pkg/client"
)

// Headers that describe a single connection and are never copied.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func writeResponse(w http.ResponseWriter, resp *http.Response, logger zerolog.Logger) {
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		if _, hop := hopByHopHeaders[http.CanonicalHeaderKey(k)]; hop {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Debug().Err(err).Msg("Client went away while writing response")
	}
}

// writeError answers a request neither network nor cache could satisfy.
// An origin status is passed on; a lost connection becomes 503.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	var fe *client.FetchError
	switch {
	case errors.Is(err, client.ErrNetworkUnavailable):
		status = http.StatusServiceUnavailable
	case errors.As(err, &fe) && fe.StatusCode > 0:
		status = fe.StatusCode
	}
	msg := http.StatusText(status)
	if status == http.StatusServiceUnavailable {
		msg += ": offline and not cached"
	}
	http.Error(w, msg, status)
}
