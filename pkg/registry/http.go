package registry

import (
	"encoding/json"
	"net/http"
)

// Health is the body of the health endpoint.
type Health struct {
	Status       string `json:"status"`
	Registration *State `json:"registration,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Handler reports the registration state. It answers 200 once a
// generation is active and 503 before that or when the state cannot be
// read.
func Handler(tracker Tracker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		state, err := tracker.GetState(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(Health{Status: "unavailable", Error: err.Error()})
			return
		}

		health := Health{Status: "ok", Registration: state}
		if !state.Serving() {
			health.Status = "starting"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}
