package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"registrar/internal/ratelimit/models"
	"registrar/pkg/platform/httputil"
	"registrar/pkg/platform/middleware/metadata"
	"registrar/pkg/requestcontext"
)

// BucketStore checks and records one request against a sliding window.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

type Middleware struct {
	store    BucketStore
	logger   *slog.Logger
	limit    int
	window   time.Duration
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// New limits each caller to limit requests per window. A non-positive limit
// disables the middleware.
func New(store BucketStore, limit int, window time.Duration, logger *slog.Logger, opts ...Option) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Middleware{
		store:    store,
		logger:   logger,
		limit:    limit,
		window:   window,
		disabled: limit <= 0 || window <= 0 || store == nil,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimitAuthenticated keys the window on the authenticated account, and on
// the client IP when no account is present. Store failures let the request
// through.
func (m *Middleware) RateLimitAuthenticated(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := scope + ":ip:" + metadata.ClientIPFromRequest(r)
			if account := requestcontext.AccountID(ctx); !account.IsNil() {
				key = scope + ":account:" + account.String()
			}

			result, err := m.store.Allow(ctx, key, m.limit, m.window)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"error", err,
					"scope", scope,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			if !result.Allowed {
				m.logger.InfoContext(ctx, "rate limit exceeded",
					"scope", scope,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeRateLimitExceeded(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many requests. Please try again later.",
		RetryAfter: result.RetryAfter,
	})
}
