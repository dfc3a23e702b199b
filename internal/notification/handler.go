package notification

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/websocket"

	"snapgram/internal/auth"
	"snapgram/internal/observability"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
)

type Handler struct {
	service  *Service
	hub      *Hub
	logger   *observability.Logger
	upgrader websocket.Upgrader
}

// NewHandler builds the notification routes. checkOrigin decides which
// browser origins may open the stream; nil accepts same-host requests only.
func NewHandler(service *Service, hub *Hub, logger *observability.Logger, checkOrigin func(r *http.Request) bool) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

func (h *Handler) Mount(mux *http.ServeMux, gate *auth.Gate) {
	mux.Handle("GET /api/notifications", gate.Require(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/notifications/stream", gate.Require(http.HandlerFunc(h.Stream)))
	mux.Handle("PATCH /api/notifications/mark-all-read", gate.Require(http.HandlerFunc(h.MarkAllRead)))
	mux.Handle("PATCH /api/notifications/{id}/read", gate.Require(http.HandlerFunc(h.MarkRead)))
	mux.Handle("DELETE /api/notifications/{id}", gate.Require(http.HandlerFunc(h.Delete)))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	account, _ := auth.AccountFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.service.List(r.Context(), account.ID, page, limit)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch notifications", "An error occurred while fetching notifications")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	account, _ := auth.AccountFromContext(r.Context())

	n, err := h.service.MarkRead(r.Context(), account.ID, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "Notification not found", "Notification does not exist or you do not have permission to access it")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Failed to mark notification as read", "An error occurred while marking notification as read")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "Notification marked as read", "notification": n})
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	account, _ := auth.AccountFromContext(r.Context())

	updated, err := h.service.MarkAllRead(r.Context(), account.ID)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Failed to mark all notifications as read", "An error occurred while marking all notifications as read")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "All notifications marked as read", "updated": updated})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	account, _ := auth.AccountFromContext(r.Context())

	if err := h.service.Delete(r.Context(), account.ID, r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "Notification not found", "Notification does not exist or you do not have permission to delete it")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Failed to delete notification", "An error occurred while deleting notification")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Notification deleted successfully"})
}

// Stream upgrades to a WebSocket and pushes every new notification for the
// caller as a JSON text frame.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	account, _ := auth.AccountFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("notification_stream_upgrade_failed", map[string]any{"error": err})
		return
	}
	defer conn.Close()

	events, unsubscribe := h.hub.Subscribe(account.ID)
	defer unsubscribe()

	logger := h.logger.With(map[string]any{"account_id": account.ID})
	logger.Info("notification_stream_opened", nil)

	// The client never sends anything useful; reading only tracks pongs and
	// notices the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			logger.Info("notification_stream_closed", nil)
			return
		case n, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(n); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
