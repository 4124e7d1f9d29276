package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iconidentify/clipgif/internal/domain"
	"github.com/iconidentify/clipgif/internal/service"
)

// EventHandler serves hub messages over HTTP.
type EventHandler struct {
	hub    *service.Hub
	logger *slog.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(hub *service.Hub, logger *slog.Logger) *EventHandler {
	return &EventHandler{hub: hub, logger: logger}
}

// MessageListResponse contains a page of messages.
type MessageListResponse struct {
	Messages []domain.Message `json:"messages"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// filterFromQuery reads type, job_id, request_id, context and since.
func filterFromQuery(r *http.Request) domain.MessageFilter {
	q := r.URL.Query()
	f := domain.MessageFilter{
		JobID:     domain.JobID(q.Get("job_id")),
		RequestID: q.Get("request_id"),
		Context:   q.Get("context"),
	}
	if t := q.Get("type"); t != "" {
		mt := domain.MessageType(t)
		f.Type = &mt
	}
	if s := q.Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			f.Since = &t
		}
	}
	return f
}

// List handles GET /api/v1/events
// Query parameters:
//   - type: progress, result or log
//   - job_id, request_id, context: routing filters
//   - since: only messages after this time (RFC3339)
//   - limit: max messages to return (default 50, max 200)
//   - offset: pagination offset (historical only)
//   - historical: if "true", query SQLite instead of the ring buffer
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 50, 200)
	if limit == 0 {
		limit = 50
	}
	offset := intParam(r, "offset", 0, 0)
	filter := filterFromQuery(r)

	var msgs []domain.Message
	if r.URL.Query().Get("historical") == "true" {
		var err error
		msgs, err = h.hub.QueryHistorical(r.Context(), filter, limit, offset)
		if err != nil {
			h.logger.Error("failed to query events", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to query events")
			return
		}
	} else {
		msgs = h.hub.Recent(limit, filter)
		offset = 0
	}

	writeJSON(w, http.StatusOK, MessageListResponse{Messages: msgs, Limit: limit, Offset: offset})
}

// Stats handles GET /api/v1/events/stats
func (h *EventHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Stats())
}

// Stream handles GET /api/v1/events/stream
// Server-Sent Events endpoint; accepts the same filters as List.
func (h *EventHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	filter := filterFromQuery(r)
	subID, ch := h.hub.Subscribe()
	defer h.hub.Unsubscribe(subID)

	h.logger.Info("SSE client connected", "subscriber_id", subID, "remote_addr", r.RemoteAddr)

	fmt.Fprintf(w, "event: connected\ndata: {\"subscriber_id\": %d}\n\n", subID)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("streaming not supported", "error", err)
		return
	}

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE client disconnected", "subscriber_id", subID)
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !filter.Matches(msg) {
				continue
			}
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Warn("failed to serialize message", "message_id", msg.ID, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data)
			rc.Flush()

		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			rc.Flush()
		}
	}
}
