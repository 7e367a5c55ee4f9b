package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"nexuscli/internal/authority"
	"nexuscli/internal/config"
	"nexuscli/internal/infrastructure"
	"nexuscli/internal/license"
	custommw "nexuscli/internal/middleware"
	"nexuscli/internal/security"
	handlers "nexuscli/internal/transport/http"
)

// Application is the composed service: every dependency is constructed once
// here and passed down explicitly.
type Application struct {
	Config         *config.Config
	Router         *chi.Mux
	Server         *http.Server
	LicenseManager *license.Manager
	Guard          *custommw.LicenseGuard
	Logger         *slog.Logger
	OTelProviders  *infrastructure.OTelProviders
}

// NewApplication creates the application with all dependencies wired.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("product", config.ProductName),
		slog.String("version", config.ProductVersion),
	)

	otelProviders, err := infrastructure.InitializeOTel(context.Background(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if err := app.initializeLicensing(); err != nil {
		return nil, err
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeLicensing builds the license subsystem: fingerprint, store,
// authority client and the validation engine.
func (a *Application) initializeLicensing() error {
	licensePath, err := config.LicensePath()
	if err != nil {
		return fmt.Errorf("failed to resolve license path: %w", err)
	}
	if !config.FileExists(licensePath) {
		a.Logger.Warn("License file not found, activation will be required",
			slog.String("path", licensePath),
		)
	}

	metrics, err := license.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create license metrics: %w", err)
	}

	fingerprint := security.NewFingerprintManager()
	store := license.NewStore(licensePath)
	client := authority.NewClient(a.Config.License.AuthorityBaseURL, authority.WithMetrics(metrics))

	a.LicenseManager = license.NewManager(a.Config.License, store, client, fingerprint).
		WithMetrics(metrics)
	a.Guard = custommw.NewLicenseGuard(a.LicenseManager, a.Logger)
	return nil
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Ordering: RequestID → RealIP → Logger → Recoverer → headers → rate
	// limit → license guard → routes.
	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)
	r.Use(custommw.StructuredLogger(a.Logger))
	r.Use(custommw.Recoverer(a.Logger))
	r.Use(custommw.SecurityHeaders)
	r.Use(custommw.Compress(5))
	r.Use(custommw.NewRateLimiter(50, 100, a.Logger).Handler)
	r.Use(a.Guard.Handler)

	licenseHandler := handlers.NewLicenseHandler(a.LicenseManager, a.Guard, a.Logger)
	healthHandler := handlers.NewHealthHandler()

	r.Get("/api/health", healthHandler.Health)
	r.Mount("/api/license", licenseHandler.Routes())
	r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run starts the server and blocks until an interrupt or a fatal server
// error, then shuts down gracefully.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("HTTP server listening",
			slog.String("address", a.Server.Addr),
		)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()

		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("OpenTelemetry shutdown failed", slog.String("error", err.Error()))
		}
		return infrastructure.CloseLogFile()
	})

	err := g.Wait()
	a.Logger.Info("Application stopped")
	return err
}
