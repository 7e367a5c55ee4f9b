package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "nexuscli/internal/errors"
	"nexuscli/internal/license"
	"nexuscli/internal/middleware"
)

var validate = validator.New()

// LicenseHandler handles license-related HTTP requests
type LicenseHandler struct {
	manager *license.Manager
	guard   *middleware.LicenseGuard
	logger  *slog.Logger
}

// NewLicenseHandler creates a new license handler. The guard is optional;
// when present its verdict cache is invalidated after lifecycle changes.
func NewLicenseHandler(manager *license.Manager, guard *middleware.LicenseGuard, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		manager: manager,
		guard:   guard,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// ActivationRequest is the POST /api/license/activate payload.
type ActivationRequest struct {
	LicenseKey    string `json:"license_key" validate:"required"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
}

// Bind implements render.Binder.
func (a *ActivationRequest) Bind(r *http.Request) error {
	if err := validate.Struct(a); err != nil {
		return err
	}
	return license.ValidateKeyFormat(license.NormalizeKey(a.LicenseKey))
}

// ActivationResponse is the POST /api/license/activate response body.
type ActivationResponse struct {
	Success     bool                    `json:"success"`
	Message     string                  `json:"message"`
	LicenseInfo *license.LicenseSummary `json:"license_info,omitempty"`
	Timestamp   time.Time               `json:"timestamp"`
}

// StatusResponse is the GET /api/license response body.
type StatusResponse struct {
	License   license.LicenseSummary `json:"license"`
	Verdict   license.Verdict        `json:"verdict"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
}

// HardwareIDResponse is the GET /api/license/hardware-id response body.
type HardwareIDResponse struct {
	HardwareID string            `json:"hardware_id"`
	Components map[string]string `json:"components,omitempty"`
}

// Routes returns the chi sub-router for /api/license.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/", h.Status)
	r.Post("/activate", h.Activate)
	r.Post("/deactivate", h.Deactivate)
	r.Get("/hardware-id", h.HardwareID)

	return r
}

// Status handles GET /api/license: the summary plus the current verdict.
func (h *LicenseHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("license-handler").Start(r.Context(), "license_handler.status",
		trace.WithAttributes(attribute.String("http.route", "/api/license")),
	)
	defer span.End()

	verdict := h.manager.IsValid(ctx)
	span.SetAttributes(
		attribute.Bool("license.valid", verdict.Valid),
		attribute.Bool("license.grace_warning", verdict.GraceWarning),
	)

	render.JSON(w, r, StatusResponse{
		License:   h.manager.Info(ctx),
		Verdict:   verdict,
		Message:   verdict.Message(),
		Timestamp: time.Now(),
	})
}

// Activate handles POST /api/license/activate.
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("license-handler").Start(r.Context(), "license_handler.activate",
		trace.WithAttributes(attribute.String("http.route", "/api/license/activate")),
	)
	defer span.End()

	var req ActivationRequest
	if err := render.Bind(r, &req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	record, err := h.manager.Activate(ctx, req.LicenseKey, req.CustomerEmail)
	if err != nil {
		span.RecordError(err)
		h.logger.ErrorContext(ctx, "license activation failed",
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.FromAuthorityError(err)))
		return
	}

	if h.guard != nil {
		h.guard.InvalidateCache()
	}

	info := h.manager.Info(ctx)
	h.logger.InfoContext(ctx, "license activated via api",
		slog.String("license_type", string(record.LicenseType)),
	)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, ActivationResponse{
		Success:     true,
		Message:     "License activated successfully",
		LicenseInfo: &info,
		Timestamp:   time.Now(),
	})
}

// Deactivate handles POST /api/license/deactivate. Always removes the local
// record; authority unreachability is not an error here.
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("license-handler").Start(r.Context(), "license_handler.deactivate",
		trace.WithAttributes(attribute.String("http.route", "/api/license/deactivate")),
	)
	defer span.End()

	if err := h.manager.Deactivate(ctx); err != nil {
		span.RecordError(err)
		render.Render(w, r, apierrors.NewErrorResponse(
			apierrors.NewWithDetails(http.StatusInternalServerError, "DEACTIVATION_FAILED", err.Error(), nil),
		))
		return
	}

	if h.guard != nil {
		h.guard.InvalidateCache()
	}

	render.JSON(w, r, map[string]any{
		"success":   true,
		"message":   "License deactivated",
		"timestamp": time.Now(),
	})
}

// HardwareID handles GET /api/license/hardware-id, used by support to issue
// machine-bound licenses out of band.
func (h *LicenseHandler) HardwareID(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HardwareIDResponse{
		HardwareID: h.manager.HardwareID(),
	})
}
