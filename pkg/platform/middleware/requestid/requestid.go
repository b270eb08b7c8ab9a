// Package requestid propagates a correlation id through the request context
// and echoes it on the response.
package requestid

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"rentguard/pkg/requestcontext"
)

const Header = "X-Request-ID"

// maxLen bounds caller-supplied ids so they cannot bloat log lines.
const maxLen = 128

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(Header))
		if reqID == "" || len(reqID) > maxLen {
			reqID = uuid.NewString()
		}
		w.Header().Set(Header, reqID)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), reqID)))
	})
}
