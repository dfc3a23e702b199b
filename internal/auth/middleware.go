package auth

import (
	"context"
	"net/http"
	"strings"
)

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (Account, error)
}

// Gate guards routes with an access token.
type Gate struct {
	auth Authenticator
}

func NewGate(auth Authenticator) *Gate {
	return &Gate{auth: auth}
}

// Require rejects the request unless it carries a valid access token for an
// existing, unlocked account.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			WriteError(w, ErrMissingToken)
			return
		}

		account, err := g.auth.Authenticate(r.Context(), token)
		if err != nil {
			WriteError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account.Public())))
	})
}

// Optional attaches the account when a valid token is present and otherwise
// serves the request anonymously.
func (g *Gate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearerToken(r); ok {
			if account, err := g.auth.Authenticate(r.Context(), token); err == nil {
				r = r.WithContext(WithAccount(r.Context(), account.Public()))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// WebSocket handshakes, so upgrade requests may use ?access_token= instead.
func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			token := strings.TrimSpace(r.URL.Query().Get("access_token"))
			return token, token != ""
		}
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
