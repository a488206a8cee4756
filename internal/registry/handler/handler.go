// Package handler exposes the registry over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"registrar/internal/registry/models"
	"registrar/internal/registry/service"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/httputil"
	"registrar/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/service-mocks.go -package=mocks Service

// Service is the subset of the registration coordinator served over HTTP.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Record, error)
	Remove(ctx context.Context, owner id.AccountID, identity models.Identity) error
	Get(ctx context.Context, identity models.Identity) (*models.Record, error)
	ListOwned(ctx context.Context, owner id.AccountID) ([]models.Identity, error)
	Count(ctx context.Context) (uint64, error)
}

// Handler serves the entity endpoints. Routes are expected to sit behind the
// auth middleware; a missing caller is treated as unauthorized.
type Handler struct {
	service  Service
	logger   *slog.Logger
	createMW []func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithCreateMiddleware wraps only POST /entities, e.g. with a mint rate limit.
func WithCreateMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.createMW = append(h.createMW, mw...)
	}
}

// New creates a Handler.
func New(svc Service, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{service: svc, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the entity routes on r.
func (h *Handler) Register(r chi.Router) {
	r.With(h.createMW...).Post("/entities", h.handleCreate)
	// count is registered before the identity pattern so it is never parsed as one
	r.Get("/entities/count", h.handleCount)
	r.Get("/entities/{identity}", h.handleGet)
	r.Delete("/entities/{identity}", h.handleRemove)
	r.Get("/accounts/{owner}/entities", h.handleListOwned)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req CreateEntityRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid create entity request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.service.Create(ctx, service.CreateRequest{
		Owner:   caller,
		Seed:    []byte(req.Seed),
		Profile: req.Profile,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, CreateEntityResponse{
		Identity: record.Identity,
		Record:   record,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	identity, err := models.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.Get(r.Context(), identity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	identity, err := models.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Remove(r.Context(), caller, identity); err != nil {
		// don't disclose who owns the entity
		if dErrors.HasCode(err, dErrors.CodeForbidden) {
			err = dErrors.New(dErrors.CodeForbidden, "not authorized")
		}
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListOwned(w http.ResponseWriter, r *http.Request) {
	owner, err := id.ParseAccountID(chi.URLParam(r, "owner"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	identities, err := h.service.ListOwned(r.Context(), owner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if identities == nil {
		identities = []models.Identity{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListOwnedResponse{Owner: owner, Identities: identities})
}

func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.Count(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CountResponse{Count: count})
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (id.AccountID, bool) {
	caller := requestcontext.AccountID(r.Context())
	if caller.IsNil() {
		h.logger.ErrorContext(r.Context(), "caller missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.AccountID{}, false
	}
	return caller, true
}
