package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
)

const (
	defaultMaxAttempts       = 5
	defaultLockWindow        = 2 * time.Hour
	defaultPasswordResetTTL  = 10 * time.Minute
	defaultMaxActiveSessions = 10

	ForgotPasswordMessage = "If an account with this email exists, a password reset link has been sent."
)

// SecurityConfig is the lockout and session policy of the service.
type SecurityConfig struct {
	MaxLoginAttempts    int
	LockDuration        time.Duration
	PasswordResetTTL    time.Duration
	MaxActiveSessions   int
	RotateRefreshTokens bool
}

func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxLoginAttempts:  defaultMaxAttempts,
		LockDuration:      defaultLockWindow,
		PasswordResetTTL:  defaultPasswordResetTTL,
		MaxActiveSessions: defaultMaxActiveSessions,
	}
}

// ResetNotifier delivers raw password-reset tokens out of band.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, account PublicAccount, rawToken string, expiresAt time.Time) error
}

type Service struct {
	store    Store
	tokens   *TokenIssuer
	hasher   Hasher
	security SecurityConfig
	notifier ResetNotifier
	now      func() time.Time
}

func NewService(store Store, tokens *TokenIssuer, hasher Hasher, security SecurityConfig) *Service {
	defaults := DefaultSecurityConfig()
	if security.MaxLoginAttempts <= 0 {
		security.MaxLoginAttempts = defaults.MaxLoginAttempts
	}
	if security.LockDuration <= 0 {
		security.LockDuration = defaults.LockDuration
	}
	if security.PasswordResetTTL <= 0 {
		security.PasswordResetTTL = defaults.PasswordResetTTL
	}
	if security.MaxActiveSessions < 0 {
		security.MaxActiveSessions = 0
	}

	return &Service{
		store:    store,
		tokens:   tokens,
		hasher:   hasher,
		security: security,
		now:      time.Now,
	}
}

func (s *Service) WithResetNotifier(notifier ResetNotifier) *Service {
	s.notifier = notifier
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	email := normalizeEmail(input.Email)
	username := normalizeUsername(input.Username)
	fullName := strings.TrimSpace(input.FullName)
	phone := strings.TrimSpace(input.Phone)

	if err := validateEmail(email); err != nil {
		return AuthResult{}, err
	}
	if err := validateFullName(fullName); err != nil {
		return AuthResult{}, err
	}
	if err := validateUsername(username); err != nil {
		return AuthResult{}, err
	}
	if err := validatePhone(phone); err != nil {
		return AuthResult{}, err
	}
	if input.Password != input.ConfirmPassword {
		return AuthResult{}, ErrPasswordMismatch
	}
	if err := validatePasswordStrength("password", input.Password); err != nil {
		return AuthResult{}, err
	}

	emailTaken, err := s.store.EmailExists(ctx, email)
	if err != nil {
		return AuthResult{}, serviceErr("check email", err)
	}
	if emailTaken {
		return AuthResult{}, ErrDuplicateEmail
	}
	usernameTaken, err := s.store.UsernameExists(ctx, username)
	if err != nil {
		return AuthResult{}, serviceErr("check username", err)
	}
	if usernameTaken {
		return AuthResult{}, ErrDuplicateUsername
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return AuthResult{}, serviceErr("hash password", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return AuthResult{}, serviceErr("generate account id", err)
	}

	now := s.now().UTC()
	account, err := s.store.CreateAccount(ctx, Account{
		ID:           id.String(),
		Email:        email,
		Username:     username,
		FullName:     fullName,
		Phone:        phone,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrDuplicateUsername) {
			return AuthResult{}, err
		}
		return AuthResult{}, serviceErr("create account", err)
	}

	return s.startSession(ctx, account)
}

// Login accepts an email or a username. Unknown accounts and wrong passwords
// produce the same ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, identifier, password string) (AuthResult, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return AuthResult{}, invalid("email", "Email is required")
	}
	if password == "" {
		return AuthResult{}, invalid("password", "Password is required")
	}

	account, err := s.store.GetByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, serviceErr("lookup account", err)
	}

	now := s.now().UTC()
	if account.IsLocked(now) {
		return AuthResult{}, accountLocked(*account.LockUntil, now)
	}

	if !s.hasher.Compare(account.PasswordHash, password) {
		lockedUntil, err := s.store.RegisterFailedLogin(ctx, account.ID, s.security.MaxLoginAttempts, s.security.LockDuration, now)
		if err != nil {
			return AuthResult{}, serviceErr("register failed login", err)
		}
		if lockedUntil != nil {
			return AuthResult{}, accountLocked(*lockedUntil, now)
		}
		return AuthResult{}, ErrInvalidCredentials
	}

	if account.FailedLoginAttempts > 0 || account.LockUntil != nil {
		if err := s.store.ResetFailedLogins(ctx, account.ID); err != nil {
			return AuthResult{}, serviceErr("reset failed logins", err)
		}
		account.FailedLoginAttempts = 0
		account.LockUntil = nil
	}

	return s.startSession(ctx, account)
}

// Logout forgets one refresh token. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, accountID, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	if err := s.store.RemoveRefreshToken(ctx, accountID, hashToken(refreshToken)); err != nil {
		return serviceErr("remove refresh token", err)
	}
	return nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return RefreshResult{}, invalid("refreshToken", "Please provide a refresh token")
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return RefreshResult{}, ErrTokenExpired
		}
		return RefreshResult{}, ErrInvalidRefreshToken
	}

	account, err := s.store.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return RefreshResult{}, ErrInvalidRefreshToken
		}
		return RefreshResult{}, serviceErr("lookup account", err)
	}

	oldHash := hashToken(refreshToken)
	present, err := s.store.HasRefreshToken(ctx, account.ID, oldHash)
	if err != nil {
		return RefreshResult{}, serviceErr("check refresh token", err)
	}
	if !present {
		return RefreshResult{}, ErrInvalidRefreshToken
	}

	access, _, err := s.tokens.IssueAccess(account.ID)
	if err != nil {
		return RefreshResult{}, serviceErr("issue access token", err)
	}
	if !s.security.RotateRefreshTokens {
		return RefreshResult{AccessToken: access}, nil
	}

	rotated, expiresAt, err := s.tokens.IssueRefresh(account.ID)
	if err != nil {
		return RefreshResult{}, serviceErr("issue refresh token", err)
	}
	record := RefreshTokenRecord{TokenHash: hashToken(rotated), IssuedAt: s.now().UTC(), ExpiresAt: expiresAt}
	if err := s.store.ReplaceRefreshToken(ctx, account.ID, oldHash, record); err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			return RefreshResult{}, err
		}
		return RefreshResult{}, serviceErr("rotate refresh token", err)
	}

	return RefreshResult{AccessToken: access, RefreshToken: rotated}, nil
}

// ChangePassword signs the account out everywhere on success.
func (s *Service) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword, confirmPassword string) error {
	if currentPassword == "" {
		return invalid("currentPassword", "Current password is required")
	}
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if err := validatePasswordStrength("newPassword", newPassword); err != nil {
		return err
	}

	account, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return serviceErr("lookup account", err)
	}
	if !s.hasher.Compare(account.PasswordHash, currentPassword) {
		return ErrInvalidCredentials
	}

	return s.replacePassword(ctx, account.ID, newPassword)
}

// ForgotPassword answers ForgotPasswordMessage whether or not the email is
// registered.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return "", err
	}

	account, err := s.store.GetByLogin(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ForgotPasswordMessage, nil
		}
		return "", serviceErr("lookup account", err)
	}
	if account.Email != email {
		return ForgotPasswordMessage, nil
	}

	rawToken, err := randomToken(32)
	if err != nil {
		return "", serviceErr("generate reset token", err)
	}
	expiresAt := s.now().UTC().Add(s.security.PasswordResetTTL)
	if err := s.store.SetPasswordReset(ctx, account.ID, hashToken(rawToken), expiresAt); err != nil {
		return "", serviceErr("store reset token", err)
	}

	if s.notifier != nil {
		if err := s.notifier.SendPasswordReset(ctx, account.Public(), rawToken, expiresAt); err != nil {
			// Surfacing this would reveal that the email exists.
			sentry.CaptureException(fmt.Errorf("deliver password reset: %w", err))
		}
	}

	return ForgotPasswordMessage, nil
}

// ResetPassword also drops every refresh token, the same policy as
// ChangePassword.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword, confirmPassword string) error {
	resetToken = strings.TrimSpace(resetToken)
	if resetToken == "" {
		return invalid("resetToken", "Reset token is required")
	}
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if err := validatePasswordStrength("newPassword", newPassword); err != nil {
		return err
	}

	account, err := s.store.GetByResetTokenHash(ctx, hashToken(resetToken), s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return serviceErr("lookup reset token", err)
	}

	return s.replacePassword(ctx, account.ID, newPassword)
}

// Authenticate resolves an access token to its account for the request gate.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Account, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return Account{}, err
	}

	account, err := s.store.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, serviceErr("lookup account", err)
	}
	now := s.now().UTC()
	if account.IsLocked(now) {
		return Account{}, accountLocked(*account.LockUntil, now)
	}

	return account, nil
}

func (s *Service) Profile(ctx context.Context, accountID string) (PublicAccount, error) {
	account, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return PublicAccount{}, ErrAccountNotFound
		}
		return PublicAccount{}, serviceErr("lookup account", err)
	}
	return account.Public(), nil
}

func (s *Service) UpdateProfile(ctx context.Context, accountID string, update ProfileUpdate) (PublicAccount, error) {
	if err := normalizeProfileUpdate(&update); err != nil {
		return PublicAccount{}, err
	}

	account, err := s.store.UpdateProfile(ctx, accountID, update, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrDuplicateUsername) {
			return PublicAccount{}, err
		}
		return PublicAccount{}, serviceErr("update profile", err)
	}
	return account.Public(), nil
}

func (s *Service) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	username = normalizeUsername(username)
	if validateUsername(username) != nil {
		return false, nil
	}
	taken, err := s.store.UsernameExists(ctx, username)
	if err != nil {
		return false, serviceErr("check username", err)
	}
	return !taken, nil
}

func (s *Service) EmailAvailable(ctx context.Context, email string) (bool, error) {
	email = normalizeEmail(email)
	if validateEmail(email) != nil {
		return false, nil
	}
	taken, err := s.store.EmailExists(ctx, email)
	if err != nil {
		return false, serviceErr("check email", err)
	}
	return !taken, nil
}

// Authors returns public author cards keyed by account id. Unknown ids are
// left out.
func (s *Service) Authors(ctx context.Context, ids []string) (map[string]Author, error) {
	accounts, err := s.store.GetByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, serviceErr("lookup authors", err)
	}
	out := make(map[string]Author, len(accounts))
	for _, account := range accounts {
		out[account.ID] = account.Author()
	}
	return out, nil
}

func (s *Service) AuthorByUsername(ctx context.Context, username string) (Author, error) {
	account, err := s.store.GetByUsername(ctx, normalizeUsername(username))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Author{}, ErrAccountNotFound
		}
		return Author{}, serviceErr("lookup author", err)
	}
	return account.Author(), nil
}

func (s *Service) ProfileByUsername(ctx context.Context, username string) (PublicAccount, error) {
	account, err := s.store.GetByUsername(ctx, normalizeUsername(username))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return PublicAccount{}, ErrAccountNotFound
		}
		return PublicAccount{}, serviceErr("lookup profile", err)
	}
	return account.Public(), nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) CleanupExpired(ctx context.Context, batchSize int) (CleanupResult, error) {
	return s.store.CleanupExpired(ctx, s.now().UTC(), batchSize)
}

func (s *Service) startSession(ctx context.Context, account Account) (AuthResult, error) {
	access, _, err := s.tokens.IssueAccess(account.ID)
	if err != nil {
		return AuthResult{}, serviceErr("issue access token", err)
	}
	refresh, expiresAt, err := s.tokens.IssueRefresh(account.ID)
	if err != nil {
		return AuthResult{}, serviceErr("issue refresh token", err)
	}

	record := RefreshTokenRecord{TokenHash: hashToken(refresh), IssuedAt: s.now().UTC(), ExpiresAt: expiresAt}
	if err := s.store.AddRefreshToken(ctx, account.ID, record, s.security.MaxActiveSessions); err != nil {
		return AuthResult{}, serviceErr("store refresh token", err)
	}

	return AuthResult{
		Account:      account.Public(),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

func (s *Service) replacePassword(ctx context.Context, accountID, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return serviceErr("hash password", err)
	}
	if err := s.store.UpdatePassword(ctx, accountID, hash, s.now().UTC()); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return serviceErr("update password", err)
	}
	return nil
}

func normalizeProfileUpdate(update *ProfileUpdate) error {
	if update.FullName != nil {
		value := strings.TrimSpace(*update.FullName)
		if err := validateFullName(value); err != nil {
			return err
		}
		update.FullName = &value
	}
	if update.Username != nil {
		value := normalizeUsername(*update.Username)
		if err := validateUsername(value); err != nil {
			return err
		}
		update.Username = &value
	}
	if update.Bio != nil {
		value := strings.TrimSpace(*update.Bio)
		if utf8.RuneCountInString(value) > 150 {
			return invalid("bio", "Bio cannot exceed 150 characters")
		}
		update.Bio = &value
	}
	if update.Phone != nil {
		value := strings.TrimSpace(*update.Phone)
		if err := validatePhone(value); err != nil {
			return err
		}
		update.Phone = &value
	}
	if update.Website != nil {
		value := strings.TrimSpace(*update.Website)
		if value != "" {
			parsed, err := url.ParseRequestURI(value)
			if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
				return invalid("website", "Please enter a valid URL")
			}
		}
		update.Website = &value
	}
	if update.Location != nil {
		value := strings.TrimSpace(*update.Location)
		if utf8.RuneCountInString(value) > 50 {
			return invalid("location", "Location cannot exceed 50 characters")
		}
		update.Location = &value
	}
	if update.Avatar != nil {
		value := strings.TrimSpace(*update.Avatar)
		if len(value) > 500 {
			return invalid("avatar", "Avatar URL is too long")
		}
		update.Avatar = &value
	}
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func serviceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrService, op, err)
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
