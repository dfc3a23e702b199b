package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type Claims struct {
	AccountID string `json:"userId"`
	Type      string `json:"type"`
	jwt.RegisteredClaims
}

// TokenIssuer signs access and refresh tokens with two independent secrets so
// a leaked token of one class can never be replayed as the other.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// WithClock replaces the time source used for issuing and verifying.
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	if now != nil {
		i.now = now
	}
	return i
}

func (i *TokenIssuer) IssueAccess(accountID string) (string, time.Time, error) {
	return i.issue(accountID, tokenTypeAccess, i.accessSecret, i.accessTTL)
}

func (i *TokenIssuer) IssueRefresh(accountID string) (string, time.Time, error) {
	return i.issue(accountID, tokenTypeRefresh, i.refreshSecret, i.refreshTTL)
}

func (i *TokenIssuer) VerifyAccess(token string) (Claims, error) {
	return i.verify(token, i.accessSecret, tokenTypeAccess)
}

func (i *TokenIssuer) VerifyRefresh(token string) (Claims, error) {
	return i.verify(token, i.refreshSecret, tokenTypeRefresh)
}

func (i *TokenIssuer) issue(accountID, tokenType string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token id: %w", err)
	}

	now := i.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		AccountID: accountID,
		Type:      tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ID:        id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s jwt: %w", tokenType, err)
	}

	return encoded, expiresAt, nil
}

func (i *TokenIssuer) verify(tokenStr string, secret []byte, wantType string) (Claims, error) {
	if tokenStr == "" {
		return Claims{}, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}
	if !token.Valid || claims.Type != wantType || claims.AccountID == "" {
		return Claims{}, ErrInvalidToken
	}

	return *claims, nil
}
