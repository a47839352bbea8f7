package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "emis/internal/errors"
	"emis/internal/services"
)

// DataHandler serves cache and report artifacts
type DataHandler struct {
	service      DataService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewDataHandler creates a data handler
func NewDataHandler(service DataService, logger *slog.Logger) *DataHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "data")),
		errorHandler: apierrors.NewErrorHandler(logger, false),
	}
}

// Routes mounts the data endpoints
func (h *DataHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/files", h.ListFiles)
	r.Get("/download/{kind}/{name}", h.Download)
	return r
}

// ListFiles returns all cache and report artifacts
func (h *DataHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.service.ListFiles(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.FileSystemError("list", err))
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"files": files,
		"count": len(files),
	})
}

// Download streams one artifact to the client
func (h *DataHandler) Download(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	name := chi.URLParam(r, "name")

	path, err := h.service.ResolveFilePath(r.Context(), kind, name)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrFileNotFound):
			h.errorHandler.HandleError(w, r, apierrors.ErrArtifactNotFound)
		case errors.Is(err, services.ErrInvalidFileKind), errors.Is(err, services.ErrInvalidFileName):
			h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		default:
			h.errorHandler.HandleError(w, r, err)
		}
		return
	}

	h.logger.InfoContext(r.Context(), "serving artifact",
		slog.String("kind", kind),
		slog.String("name", name))

	w.Header().Set("Content-Disposition", "attachment; filename=\""+name+"\"")
	http.ServeFile(w, r, path)
}
