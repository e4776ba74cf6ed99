package guard

import (
	"context"

	"github.com/coworkhub/coworkhub/internal/session"
)

type contextKey struct{}

// ContextWithToken stores the authenticated session in ctx.
func ContextWithToken(ctx context.Context, tok *session.Token) context.Context {
	return context.WithValue(ctx, contextKey{}, tok)
}

// TokenFromContext returns the session the guard authenticated, if any.
func TokenFromContext(ctx context.Context) (*session.Token, bool) {
	tok, ok := ctx.Value(contextKey{}).(*session.Token)
	return tok, ok && tok != nil
}
