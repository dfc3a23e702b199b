package post

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"

	"snapgram/internal/auth"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Mount(mux *http.ServeMux, gate *auth.Gate) {
	mux.Handle("POST /api/posts", gate.Require(http.HandlerFunc(h.CreatePost)))
	mux.HandleFunc("GET /api/posts", h.Feed)
	mux.Handle("GET /api/posts/user/{username}", gate.Optional(http.HandlerFunc(h.UserPosts)))
	mux.Handle("POST /api/posts/{postId}/like", gate.Require(http.HandlerFunc(h.ToggleLike)))
	mux.Handle("POST /api/posts/{postId}/comments", gate.Require(http.HandlerFunc(h.AddComment)))
	mux.Handle("DELETE /api/posts/{postId}", gate.Require(http.HandlerFunc(h.DeletePost)))
	mux.HandleFunc("GET /api/reels", h.Reels)
}

func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	account, _ := auth.AccountFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "Validation error", "Invalid JSON body")
		return
	}

	p, err := h.service.Create(r.Context(), account.ID, input)
	if err != nil {
		h.fail(w, err, "Post creation failed", "An error occurred while creating the post")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"message": "Post created successfully", "post": p})
}

func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)

	result, err := h.service.Feed(r.Context(), page, limit)
	if err != nil {
		h.fail(w, err, "Failed to fetch posts", "An error occurred while fetching posts")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) UserPosts(w http.ResponseWriter, r *http.Request) {
	viewer, _ := auth.AccountFromContext(r.Context())
	page, limit := pagination(r)

	result, err := h.service.ByUsername(r.Context(), r.PathValue("username"), viewer.ID, page, limit)
	if err != nil {
		if errors.Is(err, auth.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "User not found", "User does not exist")
			return
		}
		h.fail(w, err, "Failed to fetch user posts", "An error occurred while fetching user posts")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	account, _ := auth.AccountFromContext(r.Context())

	p, liked, err := h.service.ToggleLike(r.Context(), r.PathValue("postId"), account.ID)
	if err != nil {
		h.fail(w, err, "Failed to toggle like", "An error occurred while toggling like")
		return
	}

	message := "Post unliked"
	if liked {
		message = "Post liked"
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": message, "post": p, "isLiked": liked})
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	account, _ := auth.AccountFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Comment text required", "Please provide a comment text")
		return
	}

	p, err := h.service.AddComment(r.Context(), r.PathValue("postId"), account.ID, body.Text)
	if err != nil {
		h.fail(w, err, "Failed to add comment", "An error occurred while adding comment")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "Comment added successfully", "post": p})
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	account, _ := auth.AccountFromContext(r.Context())

	if err := h.service.Delete(r.Context(), r.PathValue("postId"), account.ID); err != nil {
		h.fail(w, err, "Failed to delete post", "An error occurred while deleting the post")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Post deleted successfully"})
}

func (h *Handler) Reels(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)

	result, err := h.service.Reels(r.Context(), page, limit)
	if err != nil {
		h.fail(w, err, "Failed to fetch reels", "An error occurred while fetching reels")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// fail maps the package errors and reports anything else to Sentry.
func (h *Handler) fail(w http.ResponseWriter, err error, code, message string) {
	switch {
	case isValidation(err):
		writeError(w, http.StatusBadRequest, "Validation error", err.Error())
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Post not found", "Post does not exist")
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, "Unauthorized", "You can only delete your own posts")
	default:
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, code, message)
	}
}

func pagination(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return pageBounds(page, limit)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
