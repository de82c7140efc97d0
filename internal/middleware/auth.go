package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/abenezerw/gebeya/internal/service"
)

type contextKey int

const (
	contextKeyBuyerID contextKey = iota
)

// Auth extracts the bearer token, verifies it and passes the
// authenticated buyer id to the request context.
func Auth(ts service.TokenService) func(handler http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, found := strings.CutPrefix(header, "Bearer ")
			if !found || tokenString == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			payload, err := ts.VerifyToken(tokenString)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyBuyerID, payload.BuyerID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BuyerIDFromContext extracts the authenticated buyer id from context
func BuyerIDFromContext(ctx context.Context) (string, bool) {
	buyerID, ok := ctx.Value(contextKeyBuyerID).(string)
	return buyerID, ok
}

// WithBuyerID returns a context carrying buyer id, for tests
func WithBuyerID(ctx context.Context, buyerID string) context.Context {
	return context.WithValue(ctx, contextKeyBuyerID, buyerID)
}
