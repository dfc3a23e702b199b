package auth

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Mount registers the /api/auth routes. limit wraps the credential endpoints
// (register, login, forgot-password) and may be nil.
func (h *Handler) Mount(mux *http.ServeMux, gate *Gate, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	mux.Handle("POST /api/auth/register", limit(http.HandlerFunc(h.Register)))
	mux.Handle("POST /api/auth/login", limit(http.HandlerFunc(h.Login)))
	mux.Handle("POST /api/auth/forgot-password", limit(http.HandlerFunc(h.ForgotPassword)))
	mux.HandleFunc("POST /api/auth/refresh-token", h.Refresh)
	mux.HandleFunc("POST /api/auth/refresh", h.Refresh)
	mux.HandleFunc("POST /api/auth/reset-password", h.ResetPassword)
	mux.HandleFunc("GET /api/auth/check-username/{username}", h.CheckUsername)
	mux.HandleFunc("GET /api/auth/check-email/{email}", h.CheckEmail)

	mux.Handle("POST /api/auth/logout", gate.Require(http.HandlerFunc(h.Logout)))
	mux.Handle("PUT /api/auth/change-password", gate.Require(http.HandlerFunc(h.ChangePassword)))
	mux.Handle("GET /api/auth/me", gate.Require(http.HandlerFunc(h.Me)))
	mux.Handle("PUT /api/auth/profile", gate.Require(http.HandlerFunc(h.UpdateProfile)))
}

type registerRequest struct {
	Email           string `json:"email"`
	FullName        string `json:"fullName"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Phone           string `json:"phone"`
}

// loginRequest accepts the identifier under "email" (what the web client
// sends) or "username".
type loginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	ResetToken      string `json:"resetToken"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type profileRequest struct {
	FullName  *string `json:"fullName"`
	Username  *string `json:"username"`
	Bio       *string `json:"bio"`
	Phone     *string `json:"phone"`
	Website   *string `json:"website"`
	Location  *string `json:"location"`
	Avatar    *string `json:"avatar"`
	IsPrivate *bool   `json:"isPrivate"`
}

type sessionResponse struct {
	Message      string        `json:"message"`
	User         PublicAccount `json:"user"`
	Token        string        `json:"token"`
	RefreshToken string        `json:"refreshToken"`
}

type refreshResponse struct {
	Message      string `json:"message"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	result, err := h.service.Register(r.Context(), RegisterInput{
		Email:           body.Email,
		FullName:        body.FullName,
		Username:        body.Username,
		Password:        body.Password,
		ConfirmPassword: body.ConfirmPassword,
		Phone:           body.Phone,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		Message:      "User registered successfully",
		User:         result.Account,
		Token:        result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	identifier := body.Email
	if strings.TrimSpace(identifier) == "" {
		identifier = body.Username
	}

	result, err := h.service.Login(r.Context(), identifier, body.Password)
	if err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Message:      "Login successful",
		User:         result.Account,
		Token:        result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())

	var body refreshRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.Logout(r.Context(), account.ID, body.RefreshToken); err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	result, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		Message:      "Token refreshed successfully",
		Token:        result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())

	var body changePasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	err := h.service.ChangePassword(r.Context(), account.ID, body.CurrentPassword, body.NewPassword, body.ConfirmPassword)
	if err != nil {
		// A wrong current password is a form error here, not a session failure.
		if errors.Is(err, ErrInvalidCredentials) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "InvalidCredentials", Message: "Current password is incorrect"})
			return
		}
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	message, err := h.service.ForgotPassword(r.Context(), body.Email)
	if err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), body.ResetToken, body.NewPassword, body.ConfirmPassword); err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successful"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())

	profile, err := h.service.Profile(r.Context(), account.ID)
	if err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": profile})
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())

	var body profileRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), account.ID, ProfileUpdate(body))
	if err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "Profile updated successfully", "user": updated})
}

func (h *Handler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	available, err := h.service.UsernameAvailable(r.Context(), username)
	if err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"available": available, "username": username})
}

func (h *Handler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	email := r.PathValue("email")
	available, err := h.service.EmailAvailable(r.Context(), email)
	if err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"available": available, "email": email})
}

type errorBody struct {
	Error    string     `json:"error"`
	Message  string     `json:"message"`
	UnlockAt *time.Time `json:"unlockAt,omitempty"`
}

// WriteError renders any auth-taxonomy error. Unexpected errors are reported
// to Sentry and answered with a generic ServiceError.
func WriteError(w http.ResponseWriter, err error) {
	described := describe(err)
	if described.Status >= http.StatusInternalServerError {
		sentry.CaptureException(err)
	}
	if described.Status == http.StatusLocked {
		seconds := int(math.Ceil(described.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	writeJSON(w, described.Status, errorBody{
		Error:    described.Kind,
		Message:  described.Message,
		UnlockAt: described.UnlockAt,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "ValidationError", Message: "Invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
