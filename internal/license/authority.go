package license

import (
	"context"
	"errors"
	"fmt"
)

// AuthorityErrorKind classifies remote authority failures. The validation
// engine treats every kind the same (any failure feeds the grace policy);
// the transport layer maps them to distinct HTTP responses.
type AuthorityErrorKind string

const (
	KindNetworkUnavailable AuthorityErrorKind = "network_unavailable"
	KindTimeout            AuthorityErrorKind = "timeout"
	KindServerRejected     AuthorityErrorKind = "server_rejected"
)

// AuthorityError is the single error shape returned by authority clients.
type AuthorityError struct {
	Kind   AuthorityErrorKind
	Detail string
	Err    error
}

func (e *AuthorityError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("authority %s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("authority %s", e.Kind)
}

func (e *AuthorityError) Unwrap() error {
	return e.Err
}

// IsServerRejection reports whether err is an explicit rejection by the
// authority rather than a transport failure.
func IsServerRejection(err error) bool {
	var ae *AuthorityError
	return errors.As(err, &ae) && ae.Kind == KindServerRejected
}

// ActivationRequest carries everything the authority needs to bind a key to
// this machine.
type ActivationRequest struct {
	LicenseKey    string `json:"license_key"`
	CustomerEmail string `json:"customer_email"`
	HardwareID    string `json:"hardware_id"`
	Product       string `json:"product"`
	Version       string `json:"version"`
	Platform      string `json:"platform"`
	Hostname      string `json:"hostname"`
}

// ValidityAssertion is the authority's answer to a validate call.
type ValidityAssertion struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// AuthorityClient is the boundary contract with the remote license service.
// Implementations must bound every call with a timeout and collapse all
// transport failures into AuthorityError.
type AuthorityClient interface {
	Activate(ctx context.Context, req ActivationRequest) (*EntitlementRecord, error)
	Validate(ctx context.Context, licenseKey, hardwareID, product string) (ValidityAssertion, error)
	Deactivate(ctx context.Context, licenseKey, hardwareID string) error
}
