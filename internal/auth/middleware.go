package auth

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey struct{}

// Verifier checks a bearer token.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// Middleware rejects requests without a valid bearer token. onError writes
// the rejection so the caller controls the response format.
func Middleware(v Verifier, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				onError(w, r, errMissingToken)
				return
			}
			claims, err := v.Verify(token)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims.Username)))
		})
	}
}

// Username returns the authenticated admin, if any.
func Username(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(ctxKey{}).(string)
	return u, ok
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
