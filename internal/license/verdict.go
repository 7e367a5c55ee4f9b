package license

import (
	"fmt"
	"time"
)

// InvalidReason enumerates why a validation verdict came back negative.
type InvalidReason string

const (
	ReasonNoLicenseFound   InvalidReason = "no_license_found"
	ReasonHardwareMismatch InvalidReason = "hardware_mismatch"
	ReasonProductMismatch  InvalidReason = "product_mismatch"
	ReasonExpired          InvalidReason = "expired"
	ReasonValidationFailed InvalidReason = "validation_failed"
)

// Verdict is the outcome of a validation call. A degraded-but-usable state
// (authority unreachable, grace running) is reported as Valid with the
// GraceWarning side channel set; it is not a failure.
type Verdict struct {
	Valid bool `json:"valid"`

	// Reason is set only when Valid is false.
	Reason InvalidReason `json:"reason,omitempty"`
	// ExpiredAt carries the expiry date when Reason is ReasonExpired.
	ExpiredAt time.Time `json:"expired_at,omitempty"`
	// Detail carries human-readable context for ReasonValidationFailed.
	Detail string `json:"detail,omitempty"`

	// GraceWarning is set when the verdict is Valid only because the offline
	// grace period has not yet run out.
	GraceWarning       bool `json:"grace_warning,omitempty"`
	GraceDaysRemaining int  `json:"grace_days_remaining,omitempty"`
}

// validVerdict is the fully-confirmed positive outcome.
func validVerdict() Verdict {
	return Verdict{Valid: true}
}

// graceVerdict is the degraded positive outcome with days of grace left.
func graceVerdict(daysRemaining int) Verdict {
	return Verdict{Valid: true, GraceWarning: true, GraceDaysRemaining: daysRemaining}
}

// invalidVerdict builds a negative outcome with optional detail.
func invalidVerdict(reason InvalidReason, detail string) Verdict {
	return Verdict{Reason: reason, Detail: detail}
}

// expiredVerdict builds the negative outcome carrying the expiry date.
func expiredVerdict(expiredAt time.Time) Verdict {
	return Verdict{Reason: ReasonExpired, ExpiredAt: expiredAt}
}

// Message renders the verdict for support output and problem details.
func (v Verdict) Message() string {
	if v.Valid {
		if v.GraceWarning {
			return fmt.Sprintf("license valid; could not reach the license authority, %d day(s) of offline grace remaining", v.GraceDaysRemaining)
		}
		return "license is valid"
	}

	switch v.Reason {
	case ReasonNoLicenseFound:
		return "no license found; please activate a license"
	case ReasonHardwareMismatch:
		return "license is not valid for this machine"
	case ReasonProductMismatch:
		return "license is for a different product"
	case ReasonExpired:
		return fmt.Sprintf("license expired on %s", v.ExpiredAt.Format("2006-01-02"))
	case ReasonValidationFailed:
		if v.Detail != "" {
			return fmt.Sprintf("license validation failed: %s", v.Detail)
		}
		return "license validation failed"
	default:
		return "license is not valid"
	}
}
