package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelmondragon/careforall-backend/api/responses"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/careforall-backend/pkg/errors"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
)

// InternalTokenHeader carries the shared secret sibling services present on
// /internal routes.
const InternalTokenHeader = "X-Internal-Token"

// InternalOnly admits callers presenting the configured internal token or an
// admin principal. An empty token leaves the routes open.
func InternalOnly(token string, logg *logger.Logger) func(http.Handler) http.Handler {
	expected := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" || RoleFromContext(r.Context()) == string(enums.RoleAdmin) {
				next.ServeHTTP(w, r)
				return
			}
			provided := strings.TrimSpace(r.Header.Get(InternalTokenHeader))
			if provided == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "internal token required"))
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "internal token rejected"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
