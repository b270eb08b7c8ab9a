// Package requesttime pins one "now" per HTTP request so audit timestamps
// and window checks inside a request agree.
package requesttime

import (
	"net/http"
	"time"

	"rentguard/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
