package auth

import (
	"errors"
	"net/http"
	"time"
)

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrPasswordMismatch      = errors.New("passwords do not match")
	ErrDuplicateEmail        = errors.New("an account with this email already exists")
	ErrDuplicateUsername     = errors.New("this username is already taken")
	ErrMissingToken          = errors.New("missing authorization token")
	ErrInvalidToken          = errors.New("invalid token")
	ErrTokenExpired          = errors.New("token expired")
	ErrAccountNotFound       = errors.New("account not found")
	ErrInvalidRefreshToken   = errors.New("invalid refresh token")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired reset token")
	ErrService               = errors.New("service error")
)

// ErrAccountLocked carries the end of the lockout window so clients can show
// it. RetryAfter is measured on the service clock at the time of the check.
type ErrAccountLocked struct {
	Until      time.Time
	RetryAfter time.Duration
}

func accountLocked(until, now time.Time) ErrAccountLocked {
	return ErrAccountLocked{Until: until, RetryAfter: until.Sub(now)}
}

func (e ErrAccountLocked) Error() string {
	return "account temporarily locked"
}

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return ValidationError{Field: field, Message: message}
}

// apiError is the client-facing shape of every failure in the auth taxonomy.
type apiError struct {
	Status   int
	Kind     string
	Message  string
	UnlockAt *time.Time
	// RetryAfter is set for AccountLocked.
	RetryAfter time.Duration
}

func describe(err error) apiError {
	var validationErr ValidationError
	if errors.As(err, &validationErr) {
		return apiError{Status: http.StatusBadRequest, Kind: "ValidationError", Message: validationErr.Message}
	}
	var lockedErr ErrAccountLocked
	if errors.As(err, &lockedErr) {
		until := lockedErr.Until.UTC()
		return apiError{
			Status:     http.StatusLocked,
			RetryAfter: lockedErr.RetryAfter,
			Kind:       "AccountLocked",
			Message:    "Your account has been temporarily locked due to multiple failed login attempts. Please try again later.",
			UnlockAt:   &until,
		}
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return apiError{Status: http.StatusUnauthorized, Kind: "InvalidCredentials", Message: "Email or password is incorrect"}
	case errors.Is(err, ErrPasswordMismatch):
		return apiError{Status: http.StatusBadRequest, Kind: "PasswordMismatch", Message: "Passwords do not match"}
	case errors.Is(err, ErrDuplicateEmail):
		return apiError{Status: http.StatusBadRequest, Kind: "DuplicateEmail", Message: "An account with this email already exists"}
	case errors.Is(err, ErrDuplicateUsername):
		return apiError{Status: http.StatusBadRequest, Kind: "DuplicateUsername", Message: "This username is already taken"}
	case errors.Is(err, ErrMissingToken):
		return apiError{Status: http.StatusUnauthorized, Kind: "MissingToken", Message: "Please provide a valid authentication token"}
	case errors.Is(err, ErrTokenExpired):
		return apiError{Status: http.StatusUnauthorized, Kind: "TokenExpired", Message: "Your session has expired. Please log in again."}
	case errors.Is(err, ErrInvalidToken):
		return apiError{Status: http.StatusUnauthorized, Kind: "InvalidToken", Message: "The provided token is invalid"}
	case errors.Is(err, ErrAccountNotFound):
		return apiError{Status: http.StatusUnauthorized, Kind: "AccountNotFound", Message: "User not found"}
	case errors.Is(err, ErrInvalidRefreshToken):
		return apiError{Status: http.StatusUnauthorized, Kind: "InvalidRefreshToken", Message: "The provided refresh token is invalid"}
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return apiError{Status: http.StatusBadRequest, Kind: "InvalidOrExpiredToken", Message: "The password reset link is invalid or has expired"}
	default:
		return apiError{Status: http.StatusInternalServerError, Kind: "ServiceError", Message: "An unexpected error occurred"}
	}
}
