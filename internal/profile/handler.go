package profile

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"

	"snapgram/internal/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Mount(mux *http.ServeMux, gate *auth.Gate) {
	mux.Handle("GET /api/users/{username}", gate.Optional(http.HandlerFunc(h.GetProfile)))
	mux.Handle("POST /api/users/{username}/follow", gate.Require(http.HandlerFunc(h.ToggleFollow)))
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	viewer, _ := auth.AccountFromContext(r.Context())

	view, err := h.service.Get(r.Context(), r.PathValue("username"), viewer.ID)
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": view})
}

func (h *Handler) ToggleFollow(w http.ResponseWriter, r *http.Request) {
	account, _ := auth.AccountFromContext(r.Context())

	view, err := h.service.ToggleFollow(r.Context(), account.ID, r.PathValue("username"))
	if err != nil {
		h.fail(w, err)
		return
	}

	message := "Unfollowed successfully"
	if view.IsFollowing {
		message = "Followed successfully"
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": message, "user": view, "isFollowing": view.IsFollowing})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found", "message": "User does not exist"})
	case errors.Is(err, ErrSelfFollow):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid follow", "message": "You cannot follow yourself"})
	default:
		sentry.CaptureException(err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ServiceError", "message": "An unexpected error occurred"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
