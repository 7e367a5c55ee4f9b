package errors

import (
	stderrors "errors"
	"net/http"

	"nexuscli/internal/license"
)

// FromVerdict maps a negative validation verdict to an API error. Positive
// verdicts (including grace) never reach this function.
func FromVerdict(v license.Verdict) *APIError {
	switch v.Reason {
	case license.ReasonNoLicenseFound:
		return NewWithDetails(http.StatusNotFound, "LICENSE_NOT_FOUND", v.Message(), v)
	case license.ReasonHardwareMismatch:
		return NewWithDetails(http.StatusForbidden, "HARDWARE_MISMATCH", v.Message(), v)
	case license.ReasonProductMismatch:
		return NewWithDetails(http.StatusForbidden, "PRODUCT_MISMATCH", v.Message(), v)
	case license.ReasonExpired:
		return NewWithDetails(http.StatusUnauthorized, "LICENSE_EXPIRED", v.Message(), v)
	case license.ReasonValidationFailed:
		return NewWithDetails(http.StatusUnauthorized, "LICENSE_VALIDATION_FAILED", v.Message(), v)
	default:
		return ErrInvalidLicense
	}
}

// FromAuthorityError maps an authority failure to an API error: explicit
// rejections are the caller's problem, transport failures are an upstream
// outage.
func FromAuthorityError(err error) *APIError {
	var ae *license.AuthorityError
	if stderrors.As(err, &ae) {
		switch ae.Kind {
		case license.KindServerRejected:
			return NewWithDetails(http.StatusBadRequest, "LICENSE_ACTIVATION_REJECTED", ae.Detail, nil)
		case license.KindTimeout:
			return NewWithDetails(http.StatusGatewayTimeout, "AUTHORITY_TIMEOUT",
				"The license authority did not respond in time", nil)
		default:
			return NewWithDetails(http.StatusServiceUnavailable, "AUTHORITY_UNAVAILABLE",
				"Could not reach the license authority", nil)
		}
	}
	return NewWithDetails(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", err.Error(), nil)
}
