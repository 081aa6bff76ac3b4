package control

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Sternrassler/odam-offline-cache/pkg/worker"
)

// PathPrefix is where the control surface is mounted.
const PathPrefix = "/__sw/"

const maxBodyBytes = 64 << 10

// Handler exposes the channel over HTTP:
//
//	POST /__sw/message                     control message, JSON reply or 204
//	POST /__sw/sync/{tag}                  run a sync task
//	POST /__sw/push                        show a push notification
//	GET  /__sw/notifications               open notifications (Inbox only)
//	POST /__sw/notifications/{id}/click    click, redirects unless ?action=close
func (c *Channel) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathPrefix+"message", c.handleMessage)
	mux.HandleFunc("POST "+PathPrefix+"sync/{tag}", c.handleSync)
	mux.HandleFunc("POST "+PathPrefix+"push", c.handlePush)
	mux.HandleFunc("GET "+PathPrefix+"notifications", c.handleNotifications)
	mux.HandleFunc("POST "+PathPrefix+"notifications/{id}/click", c.handleClick)
	return mux
}

func (c *Channel) handleMessage(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	msg, err := DecodeMessage(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reply, err := c.Handle(r.Context(), msg)
	if err != nil {
		c.writeError(w, err)
		return
	}
	if reply == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (c *Channel) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := c.Sync(r.Context(), r.PathValue("tag")); err != nil {
		c.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Channel) handlePush(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	n, err := c.Push(r.Context(), data)
	if err != nil {
		c.writeError(w, err)
		return
	}
	if n == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (c *Channel) handleNotifications(w http.ResponseWriter, r *http.Request) {
	inbox, ok := c.notifier.(*Inbox)
	if !ok {
		http.Error(w, "notifications are not stored", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, inbox.List())
}

func (c *Channel) handleClick(w http.ResponseWriter, r *http.Request) {
	target, err := c.NotificationClick(r.Context(), r.PathValue("id"), r.URL.Query().Get("action"))
	if err != nil {
		c.writeError(w, err)
		return
	}
	if target == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (c *Channel) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidPayload):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotificationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, worker.ErrNoController):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		c.logger.Error().Err(err).Msg("Control request failed")
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
