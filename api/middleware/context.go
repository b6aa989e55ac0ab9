package middleware

import (
	"context"

	pkgauth "github.com/angelmondragon/careforall-backend/pkg/auth"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (pkgauth.Principal, bool) {
	userID := UserIDFromContext(ctx)
	if userID == "" {
		return pkgauth.Principal{}, false
	}
	return pkgauth.Principal{UserID: userID, Role: enums.Role(RoleFromContext(ctx))}, true
}

// WithPrincipal injects the caller into the context.
func WithPrincipal(ctx context.Context, principal pkgauth.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, principal.UserID)
	return context.WithValue(ctx, ctxRole, string(principal.Role))
}
