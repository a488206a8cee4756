package testutil

import (
	"net/http"
	"time"

	id "registrar/pkg/domain"
	"registrar/pkg/requestcontext"
)

// WithAccount marks the request as authenticated for account, as the auth
// middleware would. A nil account leaves the request anonymous.
func WithAccount(req *http.Request, account id.AccountID) *http.Request {
	if account.IsNil() {
		return req
	}
	return req.WithContext(requestcontext.WithAccountID(req.Context(), account))
}

// WithRequestMeta sets the request ID and request time the way the request
// and requesttime middleware do.
func WithRequestMeta(req *http.Request, requestID string, now time.Time) *http.Request {
	ctx := requestcontext.WithRequestID(req.Context(), requestID)
	ctx = requestcontext.WithTime(ctx, now)
	return req.WithContext(ctx)
}
