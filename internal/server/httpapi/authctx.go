package httpapi

import (
	"context"

	"github.com/and161185/gophchat/internal/model"
)

type ctxKey string

const identityKey ctxKey = "gc.identity"

// WithIdentity stores the authenticated identity in ctx.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromCtx fetches the identity stored by WithIdentity.
func IdentityFromCtx(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey).(model.Identity)
	return id, ok
}
