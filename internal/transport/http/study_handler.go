package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "emis/internal/errors"
	"emis/internal/services"
	api "emis/pkg/contracts/api/v1"
)

var validate = validator.New()

// StudyHandler handles study run requests
type StudyHandler struct {
	service      StudyService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewStudyHandler creates a study handler
func NewStudyHandler(service StudyService, logger *slog.Logger) *StudyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StudyHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "study")),
		errorHandler: apierrors.NewErrorHandler(logger, false),
	}
}

// Routes mounts the study endpoints
func (h *StudyHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/run", h.StartRun)
	r.Get("/runs", h.ListRuns)
	r.Get("/runs/{id}", h.GetRun)
	r.Get("/runs/{id}/result", h.GetResult)
	r.Get("/results", h.GetLatestResult)
	r.Delete("/runs/{id}", h.CancelRun)
	return r
}

// studyRunPayload wraps the API request for render binding
type studyRunPayload struct {
	api.StudyRunRequest
}

func (p *studyRunPayload) Bind(r *http.Request) error {
	return validate.Struct(&p.StudyRunRequest)
}

// StartRun accepts a new study run and returns 202 immediately; run
// progress is observed over the WebSocket snapshots.
func (h *StudyHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	payload := &studyRunPayload{}
	if err := render.Bind(r, payload); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	resp, err := h.service.StartRun(r.Context(), &payload.StudyRunRequest)
	if err != nil {
		h.errorHandler.HandleError(w, r, h.mapServiceError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "study run accepted",
		slog.String("run_id", resp.RunID))

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, resp)
}

// ListRuns returns observer snapshots of all known runs
func (h *StudyHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.service.ListRuns(r.Context())
	render.JSON(w, r, api.RunListResponse{Runs: runs, Count: len(runs)})
}

// GetRun returns the observer snapshot of one run
func (h *StudyHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	snapshot, err := h.service.GetRun(r.Context(), runID)
	if err != nil {
		h.errorHandler.HandleError(w, r, h.mapServiceError(err))
		return
	}
	render.JSON(w, r, snapshot)
}

// GetResult returns the assembled result of a finished run
func (h *StudyHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	result, err := h.service.GetResult(r.Context(), runID)
	if err != nil {
		h.errorHandler.HandleError(w, r, h.mapServiceError(err))
		return
	}
	render.JSON(w, r, result)
}

// GetLatestResult returns the most recent completed study result
func (h *StudyHandler) GetLatestResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.GetLatestResult(r.Context())
	if err != nil {
		if errors.Is(err, services.ErrNoResult) {
			h.errorHandler.HandleError(w, r, apierrors.NotFoundError("study result"))
			return
		}
		h.errorHandler.HandleError(w, r, h.mapServiceError(err))
		return
	}
	render.JSON(w, r, result)
}

// CancelRun aborts a running study run
func (h *StudyHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	if err := h.service.CancelRun(r.Context(), runID); err != nil {
		h.errorHandler.HandleError(w, r, h.mapServiceError(err))
		return
	}

	render.JSON(w, r, map[string]string{
		"run_id": runID,
		"status": "cancelling",
	})
}

// mapServiceError translates service sentinels into API errors
func (h *StudyHandler) mapServiceError(err error) error {
	switch {
	case errors.Is(err, services.ErrRunNotFound):
		return apierrors.ErrRunNotFound
	case errors.Is(err, services.ErrMarketBusy):
		return apierrors.ErrRunActive
	case errors.Is(err, services.ErrInvalidMarket):
		return apierrors.NewWithDetails(http.StatusBadRequest, "MARKET_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, services.ErrNoResult):
		return apierrors.NewWithDetails(http.StatusConflict, "CONFLICT", "study run has not produced a result yet", nil)
	case errors.Is(err, services.ErrRunFinished):
		return apierrors.NewWithDetails(http.StatusConflict, "CONFLICT", "study run already finished", nil)
	default:
		return err
	}
}
