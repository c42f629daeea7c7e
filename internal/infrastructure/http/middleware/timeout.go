package middleware

import (
	"context"
	"net/http"
	"time"
)

// ExtendedTimeout wraps a handler with a longer request context deadline.
// Batch emission keeps a connection open while every document in the lot is
// signed and transmitted, which takes far longer than a single request; the
// server's WriteTimeout must be sized above this deadline for it to matter.
func ExtendedTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
