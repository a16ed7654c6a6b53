package middleware

import (
	"context"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// identity is the authenticated caller carried on the request context.
type identity struct {
	userID string
	role   string
}

type identityKey struct{}

func identityFrom(ctx context.Context) identity {
	if ctx == nil {
		return identity{}
	}
	id, _ := ctx.Value(identityKey{}).(identity)
	return id
}

func withIdentity(ctx context.Context, id identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey{}, id)
}

func UserIDFromContext(ctx context.Context) string {
	return identityFrom(ctx).userID
}

func RoleFromContext(ctx context.Context) string {
	return identityFrom(ctx).role
}

// RequireUserID returns the authenticated user id or an unauthorized error.
// Carts and orders are always scoped by it.
func RequireUserID(ctx context.Context) (string, error) {
	if userID := UserIDFromContext(ctx); userID != "" {
		return userID, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
}

func WithUserID(ctx context.Context, userID string) context.Context {
	id := identityFrom(ctx)
	id.userID = userID
	return withIdentity(ctx, id)
}

func WithRole(ctx context.Context, role string) context.Context {
	id := identityFrom(ctx)
	id.role = role
	return withIdentity(ctx, id)
}
