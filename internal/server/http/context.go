package httpapi

import (
	"context"

	"github.com/and161185/secure-notes/internal/model"
)

type ctxKey string

const principalKey ctxKey = "securenotes.principal"

// WithPrincipal stores the authenticated caller in ctx.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom fetches the authenticated caller from ctx.
func PrincipalFrom(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey).(model.Principal)
	return p, ok
}
