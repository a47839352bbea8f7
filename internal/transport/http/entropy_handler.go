package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "emis/internal/errors"
	"emis/internal/services"
)

// EntropyHandler serves computed entropy series
type EntropyHandler struct {
	service      EntropyService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewEntropyHandler creates an entropy handler
func NewEntropyHandler(service EntropyService, logger *slog.Logger) *EntropyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntropyHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "entropy")),
		errorHandler: apierrors.NewErrorHandler(logger, false),
	}
}

// Routes mounts the entropy endpoints
func (h *EntropyHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{market}", h.GetSeries)
	return r
}

// GetSeries returns a market's entropy series, optionally clipped to
// the from/to query dates (inclusive, 2006-01-02 format).
func (h *EntropyHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	market := chi.URLParam(r, "market")

	from, err := parseDateParam(r.URL.Query().Get("from"))
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("from", "must be a date in 2006-01-02 format"))
		return
	}
	to, err := parseDateParam(r.URL.Query().Get("to"))
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("to", "must be a date in 2006-01-02 format"))
		return
	}

	series, err := h.service.GetSeries(r.Context(), market, from, to)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidMarket):
			h.errorHandler.HandleError(w, r, apierrors.ErrMarketNotFound)
		case errors.Is(err, services.ErrSeriesNotFound):
			h.errorHandler.HandleError(w, r, apierrors.NotFoundError("entropy series"))
		default:
			h.errorHandler.HandleError(w, r, err)
		}
		return
	}

	render.JSON(w, r, series)
}

// parseDateParam parses an optional YYYY-MM-DD query value
func parseDateParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}
