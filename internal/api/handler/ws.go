package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iconidentify/clipgif/internal/domain"
	"github.com/iconidentify/clipgif/internal/extract"
	"github.com/iconidentify/clipgif/internal/service"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 10 * time.Second
)

// WSHandler serves the progress websocket and the content-script
// extraction bridge.
type WSHandler struct {
	hub      *service.Hub
	bridge   *extract.ChannelBridge
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a websocket handler. bridge may be nil when
// delegation goes through Redis instead.
func NewWSHandler(hub *service.Hub, bridge *extract.ChannelBridge, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		bridge: bridge,
		upgrader: websocket.Upgrader{
			// Origins are checked by the CORS middleware and API key auth.
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: wsWriteWait,
		},
		logger: logger,
	}
}

// readLoop drains the connection and cancels when the peer goes away.
func readLoop(conn *websocket.Conn, cancel context.CancelFunc, onMessage func([]byte)) {
	defer cancel()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if onMessage != nil {
			onMessage(data)
		}
	}
}

func ping(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// Progress handles GET /api/v1/ws. Hub messages matching the query filters
// (job_id, request_id, context, type) are pushed as JSON.
func (h *WSHandler) Progress(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	subID, ch := h.hub.Subscribe()
	defer h.hub.Unsubscribe(subID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go readLoop(conn, cancel, nil)

	logger := h.logger.With("subscriber_id", subID)
	logger.Info("progress websocket connected", "remote_addr", r.RemoteAddr)

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("progress websocket disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !filter.Matches(msg) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Info("progress websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := ping(conn); err != nil {
				return
			}
		}
	}
}

// Content handles GET /api/v1/ws/content. The content script that owns the
// video player connects here, receives DelegatedRequests and answers each
// with a DelegatedResponse.
func (h *WSHandler) Content(w http.ResponseWriter, r *http.Request) {
	if h.bridge == nil {
		writeError(w, http.StatusNotImplemented, "websocket extraction bridge is disabled")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logger := h.logger.With("remote_addr", r.RemoteAddr)
	logger.Info("content script connected")

	go func() {
		defer cancel()
		for {
			var resp domain.DelegatedResponse
			if err := conn.ReadJSON(&resp); err != nil {
				return
			}
			if err := h.bridge.Respond(resp); err != nil {
				logger.Warn("dropping delegated response", "request_id", resp.ID, "error", err)
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("content script disconnected")
			return
		case req := <-h.bridge.Requests():
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(req); err != nil {
				logger.Warn("failed to forward delegated request", "request_id", req.ID, "error", err)
				h.bridge.Respond(domain.DelegatedResponse{ID: req.ID, Error: "content script connection lost"})
				return
			}
			logger.Debug("forwarded delegated request", "request_id", req.ID)
		case <-ticker.C:
			if err := ping(conn); err != nil {
				return
			}
		}
	}
}
