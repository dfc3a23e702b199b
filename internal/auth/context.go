package auth

import "context"

type contextKey struct{}

func WithAccount(ctx context.Context, account PublicAccount) context.Context {
	return context.WithValue(ctx, contextKey{}, account)
}

// AccountFromContext returns the account attached by the Gate.
func AccountFromContext(ctx context.Context) (PublicAccount, bool) {
	account, ok := ctx.Value(contextKey{}).(PublicAccount)
	return account, ok
}
