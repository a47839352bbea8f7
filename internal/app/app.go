package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"emis/pkg/contracts"

	"emis/internal/config"
	apierrors "emis/internal/errors"
	"emis/internal/exporter"
	"emis/internal/infrastructure"
	customMiddleware "emis/internal/middleware"
	"emis/internal/operations"
	"emis/internal/prices"
	"emis/internal/services"
	"emis/internal/study"
	handlers "emis/internal/transport/http"
	ws "emis/internal/websocket"
)

// Version is the service version reported by the health endpoint
const Version = contracts.Version

// Application is the composition root of the study service
type Application struct {
	Config *config.Config
	Paths  *config.Paths
	Router *chi.Mux
	Server *http.Server
	Logger *slog.Logger

	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.BusinessMetrics

	WebSocketHub *ws.Hub
	Broadcaster  *operations.StatusBroadcaster
	Manager      *operations.Manager

	StudyService   *services.StudyService
	EntropyService *services.EntropyService
	DataService    *services.DataService
	HealthService  *services.HealthService

	upgrader websocket.Upgrader
}

// NewApplication builds the full application with its dependencies
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("version", contracts.GetVersionString()),
		slog.String("build", contracts.GetFullVersionString()))

	paths, err := config.GetPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution()

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := infrastructure.CreateBusinessMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: otelProviders,
		Metrics:       metrics,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices builds the pipeline, the run manager, and the
// service layer in dependency order.
func (a *Application) initializeServices() error {
	a.WebSocketHub = ws.NewHub(a.Logger)
	a.WebSocketHub.Start()

	a.Broadcaster = operations.NewStatusBroadcaster(a.WebSocketHub, a.Logger)

	store := prices.NewFileStore()
	source := prices.NewChartClient(a.Config.Source, a.Logger)
	cache := prices.NewCache(store, source, a.Paths, a.Config, a.Logger)
	pipeline := study.NewPipeline(cache, a.Paths, a.Logger)

	steps := []operations.Step{
		operations.NewFetchStep(pipeline),
		operations.NewAlignStep(pipeline),
		operations.NewEntropyStep(pipeline),
		operations.NewSignalsStep(pipeline),
		operations.NewBacktestStep(pipeline),
		operations.NewExportStep(
			exporter.NewResultsExporter(a.Paths),
			exporter.NewWorkbookExporter(a.Paths),
		),
	}

	a.Manager = operations.NewManager(pipeline, steps, operations.NewConfig(), a.Broadcaster, a.Metrics, a.Logger)

	a.StudyService = services.NewStudyService(a.Manager, a.Broadcaster, a.Config, a.Logger)
	a.EntropyService = services.NewEntropyService(a.Paths, a.Logger)
	a.DataService = services.NewDataService(a.Paths, a.Logger)
	a.HealthService = services.NewHealthService(Version, a.Paths, a.WebSocketHub, a.Manager, a.Logger)

	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  a.Config.WebSocket.ReadBufferSize,
		WriteBufferSize: a.Config.WebSocket.WriteBufferSize,
		CheckOrigin:     a.checkWebSocketOrigin,
	}

	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	if a.OTelProviders != nil {
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
		if err != nil {
			a.Logger.Warn("OpenTelemetry middleware disabled", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}
	}

	r.Use(customMiddleware.BusinessMetricsMiddleware(a.Metrics))
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.SecurityHeaders)

	if a.Config.Security.EnableCORS {
		r.Use(customMiddleware.CORS(a.getCORSConfig()))
	}

	if a.Config.Security.RateLimit.Enabled {
		r.Use(customMiddleware.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger,
		).Handler)
	}

	errorHandler := apierrors.NewErrorHandler(a.Logger, a.Config.Logging.Development)
	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	a.setupAPIRoutes(r)

	r.Get("/ws", a.handleWebSocket)

	// Prometheus export lives outside the middleware stack
	if a.OTelProviders != nil && a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes mounts the versioned API surface
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/version", func(w http.ResponseWriter, req *http.Request) {
			render.JSON(w, req, contracts.GetVersionInfo())
		})

		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout, a.Logger))
			r.Mount("/health", handlers.NewHealthHandler(a.HealthService, a.Logger).Routes())
			r.Mount("/data", handlers.NewDataHandler(a.DataService, a.Logger).Routes())
			r.Mount("/entropy", handlers.NewEntropyHandler(a.EntropyService, a.Logger).Routes())
		})

		// Study runs execute asynchronously; the handler only accepts
		// and acknowledges, so the study timeout bounds acceptance.
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.StudyTimeout, a.Logger))
			r.Mount("/study", handlers.NewStudyHandler(a.StudyService, a.Logger).Routes())
		})
	})
}

// handleWebSocket upgrades the connection and hands it to the hub
func (a *Application) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr))
		return
	}

	a.Logger.InfoContext(r.Context(), "websocket client connected",
		slog.String("remote_addr", r.RemoteAddr))

	ws.ServeWS(a.WebSocketHub, conn)
}

// checkWebSocketOrigin validates the Origin header against the
// configured allow list. Same-origin requests carry no Origin header
// and are always accepted.
func (a *Application) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range a.Config.Security.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
		Logger:         a.Logger,
	}
}

// createServer builds the HTTP server from configuration
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start runs the HTTP server until the context is cancelled
func (a *Application) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.Logger.Info("http server listening",
			slog.String("addr", a.Server.Addr),
			slog.Int("port", a.Config.Server.Port))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		return a.Stop()
	}
}

// Stop shuts the application down gracefully: the HTTP server first so
// no new runs arrive, then the hub and broadcaster.
func (a *Application) Stop() error {
	a.Logger.Info("application stopping")

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.Server.Shutdown(ctx); err != nil {
		a.Logger.Error("http server shutdown failed", slog.String("error", err.Error()))
		firstErr = err
	}

	a.Broadcaster.Stop()
	a.WebSocketHub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			a.Logger.Error("otel shutdown failed", slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := infrastructure.CloseLogFile(); err != nil && firstErr == nil {
		firstErr = err
	}

	a.Logger.Info("application stopped")
	return firstErr
}

// Run starts the application and blocks until SIGINT or SIGTERM
func (a *Application) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Drop finished run state periodically
	go a.runCleanupLoop(ctx)

	return a.Start(ctx)
}

func (a *Application) runCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Manager.CleanupOldRuns()
		}
	}
}
