package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nexuscli/internal/config"
	"nexuscli/internal/security"
)

// Manager is the validation engine. It owns the persisted record: every
// mutation goes through the Store under the manager's mutex, so concurrent
// callers never interleave a read-modify-write on LastValidatedAt.
type Manager struct {
	cfg         config.LicenseConfig
	store       *Store
	authority   AuthorityClient
	fingerprint *security.FingerprintManager
	metrics     *Metrics

	mu sync.Mutex
}

// LicenseSummary is the caller-facing description of the current license.
type LicenseSummary struct {
	Licensed      bool        `json:"licensed"`
	CustomerName  string      `json:"customer_name,omitempty"`
	CustomerEmail string      `json:"customer_email,omitempty"`
	Company       string      `json:"company,omitempty"`
	LicenseType   LicenseType `json:"license_type,omitempty"`
	Features      []string    `json:"features,omitempty"`
	Product       string      `json:"product,omitempty"`
	Version       string      `json:"version,omitempty"`
	IsTrial       bool        `json:"is_trial,omitempty"`
	Perpetual     bool        `json:"perpetual,omitempty"`
	ExpiryDate    *time.Time  `json:"expiry_date,omitempty"`
	DaysRemaining int         `json:"days_remaining,omitempty"`
}

// NewManager constructs the validation engine. The authority client is
// pluggable so tests can substitute an httptest-backed or failing client.
func NewManager(cfg config.LicenseConfig, store *Store, authority AuthorityClient, fp *security.FingerprintManager) *Manager {
	return &Manager{
		cfg:         cfg,
		store:       store,
		authority:   authority,
		fingerprint: fp,
	}
}

// WithMetrics attaches OpenTelemetry metrics to the manager.
func (m *Manager) WithMetrics(metrics *Metrics) *Manager {
	m.metrics = metrics
	return m
}

// HardwareID returns the fingerprint of the executing machine.
func (m *Manager) HardwareID() string {
	return m.fingerprint.CurrentFingerprint()
}

// IsValid runs the validation state machine and returns the verdict.
//
// Order of checks, cheapest first: record presence, hardware binding,
// product, expiry. Only when all static checks pass and an online re-check
// is due does the engine touch the network; a record that can never be valid
// generates no authority traffic.
func (m *Manager) IsValid(ctx context.Context) Verdict {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	verdict := m.validateLocked(ctx)
	m.recordValidation(ctx, verdict, time.Since(start))
	return verdict
}

func (m *Manager) validateLocked(ctx context.Context) Verdict {
	logger := m.logger(ctx)
	now := time.Now()

	record, err := m.store.Load()
	if err != nil {
		// Corrupt or unreadable records degrade to "no license": safer to
		// require re-activation than to guess at a tampered file.
		logger.WarnContext(ctx, "License record unreadable, treating as no license",
			slog.String("error", err.Error()),
			slog.Bool("corrupt", errors.Is(err, ErrCorruptRecord)),
		)
		return invalidVerdict(ReasonNoLicenseFound, "license record unreadable")
	}
	if record == nil {
		return invalidVerdict(ReasonNoLicenseFound, "")
	}

	currentFP := m.fingerprint.CurrentFingerprint()
	if !record.IsFloating && record.HardwareID != currentFP {
		logger.WarnContext(ctx, "License hardware mismatch",
			slog.String("license_key_masked", maskLicenseKey(record.LicenseKey)),
		)
		m.countMismatch(ctx)
		return invalidVerdict(ReasonHardwareMismatch, "")
	}

	if record.Product != config.ProductName {
		return invalidVerdict(ReasonProductMismatch, record.Product)
	}

	if record.IsExpired(now) {
		return expiredVerdict(*record.ExpiresAt)
	}

	// Static checks passed. Offline-mode licenses and licenses validated
	// within the online check interval need no authority round trip.
	if record.OfflineMode {
		return validVerdict()
	}
	sinceValidated := now.Sub(record.LastValidatedAt)
	if sinceValidated < m.cfg.OnlineCheckInterval() {
		return validVerdict()
	}

	assertion, err := m.authority.Validate(ctx, record.LicenseKey, currentFP, config.ProductName)
	if err == nil && assertion.Valid {
		// LastValidatedAt is monotonically non-decreasing.
		if now.After(record.LastValidatedAt) {
			record.LastValidatedAt = now
		}
		if err := m.store.Save(record); err != nil {
			logger.ErrorContext(ctx, "Failed to persist validated license record",
				slog.String("error", err.Error()),
			)
		}
		return validVerdict()
	}

	detail := "could not reach license authority"
	if err != nil {
		detail = err.Error()
	} else if assertion.Message != "" {
		detail = assertion.Message
	}

	// Grace runs from the last confirmed validation, not from this failed
	// attempt, so being offline forever cannot extend it. The record is
	// deliberately not updated here.
	hoursSince := sinceValidated.Hours()
	graceHours := float64(m.cfg.OfflineGraceDays) * 24
	if hoursSince > graceHours {
		logger.ErrorContext(ctx, "Offline grace period exhausted",
			slog.Float64("hours_since_validation", hoursSince),
			slog.Int("grace_days", m.cfg.OfflineGraceDays),
		)
		return invalidVerdict(ReasonValidationFailed, detail)
	}

	// Whole days of grace remaining, floored; always at least 1 while the
	// deadline has not passed.
	daysRemaining := m.cfg.OfflineGraceDays - int(hoursSince/24)
	if daysRemaining < 1 {
		daysRemaining = 1
	}

	logger.WarnContext(ctx, "License validation degraded to offline grace",
		slog.String("detail", detail),
		slog.Int("grace_days_remaining", daysRemaining),
	)
	m.countGraceWarning(ctx)
	return graceVerdict(daysRemaining)
}

// HasFeature reports whether the currently stored record grants the named
// feature. It is side-effect free: no validation and no network traffic.
// Returns false when no record exists or the record is unreadable.
func (m *Manager) HasFeature(ctx context.Context, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.store.Load()
	if err != nil || record == nil {
		return false
	}
	return record.HasFeature(name)
}

// Info returns the caller-facing license summary. A missing or unreadable
// record yields Licensed=false, not an error.
func (m *Manager) Info(ctx context.Context) LicenseSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.store.Load()
	if err != nil || record == nil {
		return LicenseSummary{Licensed: false}
	}

	now := time.Now()
	summary := LicenseSummary{
		Licensed:      true,
		CustomerName:  record.CustomerName,
		CustomerEmail: record.CustomerEmail,
		Company:       record.Company,
		LicenseType:   record.LicenseType,
		Features:      append([]string(nil), record.Features...),
		Product:       record.Product,
		Version:       record.Version,
		IsTrial:       record.IsTrial,
		Perpetual:     record.ExpiresAt == nil,
	}
	if record.ExpiresAt != nil {
		expiry := *record.ExpiresAt
		summary.ExpiryDate = &expiry
		summary.DaysRemaining = record.DaysRemaining(now)
	}
	return summary
}

// Activate binds the license key to this machine through the remote
// authority and persists the returned record. The previous record, if any,
// is superseded.
func (m *Manager) Activate(ctx context.Context, licenseKey, customerEmail string) (*EntitlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger := m.logger(ctx)
	start := time.Now()

	licenseKey = NormalizeKey(licenseKey)
	if err := ValidateKeyFormat(licenseKey); err != nil {
		m.recordActivation(ctx, time.Since(start), false)
		return nil, err
	}

	fp := m.fingerprint.Generate()
	record, err := m.authority.Activate(ctx, ActivationRequest{
		LicenseKey:    licenseKey,
		CustomerEmail: customerEmail,
		HardwareID:    fp.Fingerprint,
		Product:       config.ProductName,
		Version:       config.ProductVersion,
		Platform:      fp.OS,
		Hostname:      fp.Hostname,
	})
	if err != nil {
		logger.ErrorContext(ctx, "License activation failed",
			slog.String("license_key_masked", maskLicenseKey(licenseKey)),
			slog.String("error", err.Error()),
		)
		m.recordActivation(ctx, time.Since(start), false)
		return nil, err
	}

	// The authority issues the record; the client pins the binding fields
	// it already knows and stamps the first validation time if the server
	// left it unset.
	if record.HardwareID == "" {
		record.HardwareID = fp.Fingerprint
	}
	if record.LastValidatedAt.IsZero() {
		record.LastValidatedAt = time.Now()
	}

	if err := record.Validate(); err != nil {
		m.recordActivation(ctx, time.Since(start), false)
		return nil, fmt.Errorf("authority returned an inconsistent record: %w", err)
	}

	if err := m.store.Save(record); err != nil {
		m.recordActivation(ctx, time.Since(start), false)
		return nil, fmt.Errorf("failed to persist activated license: %w", err)
	}

	logger.InfoContext(ctx, "License activated",
		slog.String("license_key_masked", maskLicenseKey(record.LicenseKey)),
		slog.String("license_type", string(record.LicenseType)),
		slog.String("customer_email_masked", maskEmail(record.CustomerEmail)),
		slog.Bool("perpetual", record.ExpiresAt == nil),
	)
	m.recordActivation(ctx, time.Since(start), true)
	return record.Clone(), nil
}

// Deactivate notifies the authority best-effort and removes the local
// record. Server unreachability never blocks local deactivation.
func (m *Manager) Deactivate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger := m.logger(ctx)

	record, err := m.store.Load()
	if err != nil {
		logger.WarnContext(ctx, "Deactivating with unreadable license record",
			slog.String("error", err.Error()),
		)
	}

	if record != nil {
		fp := m.fingerprint.CurrentFingerprint()
		if err := m.authority.Deactivate(ctx, record.LicenseKey, fp); err != nil {
			// Best-effort: log and continue with local deletion.
			logger.WarnContext(ctx, "Authority deactivation failed, removing local license anyway",
				slog.String("license_key_masked", maskLicenseKey(record.LicenseKey)),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := m.store.Delete(); err != nil {
		return fmt.Errorf("failed to remove license file: %w", err)
	}

	logger.InfoContext(ctx, "License deactivated")
	return nil
}
