// Package request assigns every request a correlation ID.
package request

import (
	"net/http"

	"github.com/google/uuid"

	"registrar/pkg/requestcontext"
)

const HeaderRequestID = "X-Request-ID"

const maxRequestIDLength = 128

// RequestID reuses a well-formed inbound X-Request-ID or generates one, echoes
// it on the response and stores it in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), requestID)))
	})
}
