package middleware

import (
	"net/http"

	"github.com/seednote/seed-worker/pkg/requestid"
)

// RequestID takes the request ID from the X-Request-ID header, or generates
// one, and stores it in the request context. The ID is echoed back on the
// response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestid.Header)
		if requestID == "" {
			requestID = requestid.Generate()
		}

		w.Header().Set(requestid.Header, requestID)
		next.ServeHTTP(w, r.WithContext(requestid.ToContext(r.Context(), requestID)))
	})
}
