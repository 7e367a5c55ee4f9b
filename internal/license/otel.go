package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics aggregates the OpenTelemetry instruments for the validation engine.
// All Manager metric hooks are nil-safe so the engine works unchanged when
// metrics are not wired (tests, CLI tooling).
type Metrics struct {
	activations        metric.Int64Counter
	activationDuration metric.Float64Histogram
	validations        metric.Int64Counter
	validationDuration metric.Float64Histogram
	graceWarnings      metric.Int64Counter
	hardwareMismatches metric.Int64Counter
	authorityRequests  metric.Int64Counter
	authorityFailures  metric.Int64Counter
}

// NewMetrics creates the license instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.activations, err = meter.Int64Counter(
		"license_activations_total",
		metric.WithDescription("License activation attempts by outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create activation counter: %w", err)
	}

	if m.activationDuration, err = meter.Float64Histogram(
		"license_activation_duration_seconds",
		metric.WithDescription("License activation duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create activation histogram: %w", err)
	}

	if m.validations, err = meter.Int64Counter(
		"license_validations_total",
		metric.WithDescription("License validation verdicts by result"),
	); err != nil {
		return nil, fmt.Errorf("failed to create validation counter: %w", err)
	}

	if m.validationDuration, err = meter.Float64Histogram(
		"license_validation_duration_seconds",
		metric.WithDescription("License validation duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create validation histogram: %w", err)
	}

	if m.graceWarnings, err = meter.Int64Counter(
		"license_grace_warnings_total",
		metric.WithDescription("Validations that fell back to the offline grace period"),
	); err != nil {
		return nil, fmt.Errorf("failed to create grace warning counter: %w", err)
	}

	if m.hardwareMismatches, err = meter.Int64Counter(
		"license_hardware_mismatches_total",
		metric.WithDescription("Validations rejected for a fingerprint mismatch"),
	); err != nil {
		return nil, fmt.Errorf("failed to create hardware mismatch counter: %w", err)
	}

	if m.authorityRequests, err = meter.Int64Counter(
		"license_authority_requests_total",
		metric.WithDescription("Requests sent to the remote license authority by operation"),
	); err != nil {
		return nil, fmt.Errorf("failed to create authority request counter: %w", err)
	}

	if m.authorityFailures, err = meter.Int64Counter(
		"license_authority_failures_total",
		metric.WithDescription("Failed authority requests by operation and failure kind"),
	); err != nil {
		return nil, fmt.Errorf("failed to create authority failure counter: %w", err)
	}

	return m, nil
}

// RecordAuthorityRequest counts one authority call; kind is empty on success.
func (m *Metrics) RecordAuthorityRequest(ctx context.Context, operation string, kind AuthorityErrorKind) {
	if m == nil {
		return
	}
	m.authorityRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
	))
	if kind != "" {
		m.authorityFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("kind", string(kind)),
		))
	}
}

func (m *Manager) recordValidation(ctx context.Context, verdict Verdict, elapsed time.Duration) {
	if m.metrics == nil {
		return
	}

	result := "valid"
	switch {
	case verdict.GraceWarning:
		result = "grace"
	case !verdict.Valid:
		result = string(verdict.Reason)
	}

	m.metrics.validations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
	m.metrics.validationDuration.Record(ctx, elapsed.Seconds())
}

func (m *Manager) recordActivation(ctx context.Context, elapsed time.Duration, success bool) {
	if m.metrics == nil {
		return
	}
	m.metrics.activations.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
	m.metrics.activationDuration.Record(ctx, elapsed.Seconds())
}

func (m *Manager) countGraceWarning(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	m.metrics.graceWarnings.Add(ctx, 1)
}

func (m *Manager) countMismatch(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	m.metrics.hardwareMismatches.Add(ctx, 1)
}
