// Package handler exposes the investigation pipeline over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"diligence/internal/investigation/models"
	"diligence/internal/sector"
	dErrors "diligence/pkg/domain-errors"
	"diligence/pkg/platform/httputil"
	"diligence/pkg/requestcontext"
)

// Service defines the interface for investigation operations.
type Service interface {
	Investigate(ctx context.Context, req models.Request) (*models.Investigation, error)
	Get(ctx context.Context, id string) (*models.Investigation, error)
	List(ctx context.Context, limit int) ([]models.Summary, error)
}

// Handler wires investigation endpoints to the investigation service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an investigation handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts investigation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/investigations", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
	})
	r.Get("/sectors", h.HandleSectors)
}

// HandleCreate handles POST /investigations. It blocks until the report is
// ready; a request that fails validation is answered with 400.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if client := describeClient(r.UserAgent()); client != "" {
		ctx = requestcontext.WithClient(ctx, client)
	}

	inv, err := h.service.Investigate(ctx, req.ToModel())
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) {
			h.logger.InfoContext(ctx, "investigation rejected",
				"request_id", requestID,
				"error", err,
			)
		} else {
			h.logger.ErrorContext(ctx, "investigation failed",
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "investigation completed",
		"request_id", requestID,
		"investigation_id", inv.ID,
		"state", inv.State,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromInvestigation(inv))
}

// HandleGet handles GET /investigations/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	inv, err := h.service.Get(ctx, id)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) && !dErrors.HasCode(err, dErrors.CodeBadRequest) {
			h.logger.ErrorContext(ctx, "failed to load investigation",
				"request_id", requestcontext.RequestID(ctx),
				"investigation_id", id,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromInvestigation(inv))
}

// HandleList handles GET /investigations?limit=N.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	items, err := h.service.List(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list investigations",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Investigations: nonNil(items)})
}

// HandleSectors handles GET /sectors.
func (h *Handler) HandleSectors(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, SectorsResponse{
		Sectors:    sector.All(),
		AutoDetect: sector.AutoDetect,
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
