package license

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"nexuscli/internal/infrastructure"
)

// logger returns the global structured logger enriched with the trace ID
// carried in ctx.
func (m *Manager) logger(ctx context.Context) *slog.Logger {
	return infrastructure.LoggerWithContext(ctx)
}

// maskLicenseKey hides all but the last key group so logs stay useful for
// support without exposing the full key.
func maskLicenseKey(licenseKey string) string {
	parts := strings.Split(licenseKey, "-")
	if len(parts) != 4 {
		if len(licenseKey) <= 4 {
			return "****"
		}
		return "****" + licenseKey[len(licenseKey)-4:]
	}
	return "****-****-****-" + parts[3]
}

// maskEmail keeps the first character and the domain.
func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// hashLicenseKey yields a stable non-reversible token for correlating log
// lines about the same key.
func hashLicenseKey(licenseKey string) string {
	digest := sha256.Sum256([]byte(licenseKey))
	return hex.EncodeToString(digest[:8])
}
