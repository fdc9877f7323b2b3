package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Elinez19/kleva"
	"github.com/Elinez19/kleva/account"
)

// Authenticator resolves a bearer token. *kleva.Engine implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*kleva.Identity, error)
}

// Guard rejects requests without a valid access token bound to a live
// session. The caller's identity is stored with kleva.WithIdentity.
func Guard(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			id, err := auth.Authenticate(r.Context(), token)
			if errors.Is(err, kleva.ErrInternal) {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if err != nil {
				w.Header().Set("X-Auth-Error", kleva.Code(err))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(kleva.WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole lets through callers whose role is one of roles. It must run
// behind Guard.
func RequireRole(roles ...account.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := kleva.IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
