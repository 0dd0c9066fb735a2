package gateway

import (
	"net/http"
	"strings"

	"github.com/avivago/avivago-backend/pkg/errors"
	pkghttp "github.com/avivago/avivago-backend/pkg/httputil"
	"github.com/avivago/avivago-backend/pkg/logger"
	"github.com/avivago/avivago-backend/pkg/permissions"
)

var identityHeaders = []string{
	pkghttp.HeaderUserID,
	pkghttp.HeaderUserEmail,
	pkghttp.HeaderUserRole,
	pkghttp.HeaderUserPermissions,
}

// StripIdentityHeaders drops client-supplied identity headers so only the
// gateway can set them.
func StripIdentityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range identityHeaders {
			r.Header.Del(h)
		}
		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware validates bearer tokens and forwards the caller's identity
// to downstream services as X-User-* headers.
func AuthMiddleware(tokens *TokenManager, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range identityHeaders {
				r.Header.Del(h)
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.ErrorLocalized(w, r, errors.Unauthorized("missing authorization header"))
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
				pkghttp.ErrorLocalized(w, r, errors.Unauthorized("invalid authorization header format"))
				return
			}

			claims, err := tokens.ValidateAccessToken(tokenString)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("token validation failed")
				pkghttp.ErrorLocalized(w, r, err)
				return
			}

			userID := claims.EffectiveUserID()
			perms := claims.Permissions
			if len(perms) == 0 {
				perms = permissions.ForRole(claims.Role)
			}

			r.Header.Set(pkghttp.HeaderUserID, userID)
			r.Header.Set(pkghttp.HeaderUserEmail, claims.Email)
			r.Header.Set(pkghttp.HeaderUserRole, claims.Role)
			if len(perms) > 0 {
				r.Header.Set(pkghttp.HeaderUserPermissions, permissions.Join(perms))
			}

			ctx := pkghttp.WithUserContext(r.Context(), userID, claims.Email, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
