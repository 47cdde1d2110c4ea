package middleware

import (
	"context"
	"net/http"
	"strings"

	mailauth "github.com/dvrkhlm/mailauth"
)

type identityContextKey struct{}

// IdentityFromContext returns the validated caller placed by [Guard].
func IdentityFromContext(ctx context.Context) (*mailauth.ValidateResult, bool) {
	res, ok := ctx.Value(identityContextKey{}).(*mailauth.ValidateResult)
	return res, ok
}

// Guard authenticates the request through the engine and injects the
// caller's identity into the request context. The token is taken from the
// Authorization bearer header first, then from the auth-token cookie.
func Guard(engine *mailauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := RequestToken(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.Validate(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestToken extracts the access token from the request: Authorization
// bearer header if present, the auth-token cookie otherwise.
func RequestToken(r *http.Request) (string, bool) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	if cookie, err := r.Cookie("auth-token"); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
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
