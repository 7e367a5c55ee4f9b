// Package authority implements the HTTP client for the remote license
// service. It is the only place in the codebase that speaks the authority's
// wire protocol; everything above it works with the AuthorityClient contract
// from the license package.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"nexuscli/internal/infrastructure"
	"nexuscli/internal/license"
)

const (
	activateTimeout   = 10 * time.Second
	validateTimeout   = 5 * time.Second
	deactivateTimeout = 5 * time.Second

	// maxResponseBytes caps how much of an authority response is read.
	// Entitlement records are small; anything larger is not ours.
	maxResponseBytes = 1 << 20
)

// Client talks JSON over HTTPS to the license authority. Calls are rate
// limited so a tight validation loop cannot hammer the service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *license.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMetrics attaches authority request metrics.
func WithMetrics(m *license.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates an authority client for the given base URL, e.g.
// "https://license.nexussky.io/api/v1".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Per-call deadlines come from the request context; this is the
			// hard ceiling should a context ever arrive without one.
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// activateResponse is the authority's answer to an activation call. A 200
// carrying a license record is success; anything else is a rejection.
type activateResponse struct {
	Message string                     `json:"message,omitempty"`
	License *license.EntitlementRecord `json:"license,omitempty"`
}

// validateRequest is the wire shape of a validation call.
type validateRequest struct {
	LicenseKey string `json:"license_key"`
	HardwareID string `json:"hardware_id"`
	Product    string `json:"product"`
}

// deactivateRequest is the wire shape of a deactivation call.
type deactivateRequest struct {
	LicenseKey string `json:"license_key"`
	HardwareID string `json:"hardware_id"`
}

// errorResponse is the authority's rejection body.
type errorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Activate asks the authority to bind the key to this machine and returns
// the issued entitlement record.
func (c *Client) Activate(ctx context.Context, req license.ActivationRequest) (*license.EntitlementRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, activateTimeout)
	defer cancel()

	var resp activateResponse
	if err := c.post(ctx, "activate", req, &resp); err != nil {
		return nil, err
	}

	if resp.License == nil {
		detail := resp.Message
		if detail == "" {
			detail = "activation rejected"
		}
		return nil, &license.AuthorityError{Kind: license.KindServerRejected, Detail: detail}
	}
	return resp.License, nil
}

// Validate asks the authority whether the key is still valid for this
// machine. A definitive "no" is returned as an assertion, not an error;
// errors mean the question could not be answered.
func (c *Client) Validate(ctx context.Context, licenseKey, hardwareID, product string) (license.ValidityAssertion, error) {
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	var assertion license.ValidityAssertion
	err := c.post(ctx, "validate", validateRequest{
		LicenseKey: licenseKey,
		HardwareID: hardwareID,
		Product:    product,
	}, &assertion)
	if err != nil {
		// An explicit rejection is a definitive negative answer.
		var ae *license.AuthorityError
		if errors.As(err, &ae) && ae.Kind == license.KindServerRejected {
			return license.ValidityAssertion{Valid: false, Message: ae.Detail}, nil
		}
		return license.ValidityAssertion{}, err
	}
	return assertion, nil
}

// Deactivate releases the binding between the key and this machine.
func (c *Client) Deactivate(ctx context.Context, licenseKey, hardwareID string) error {
	ctx, cancel := context.WithTimeout(ctx, deactivateTimeout)
	defer cancel()

	var resp activateResponse
	return c.post(ctx, "deactivate", deactivateRequest{
		LicenseKey: licenseKey,
		HardwareID: hardwareID,
	}, &resp)
}

// post sends one JSON request and decodes the response, collapsing every
// failure into an AuthorityError.
func (c *Client) post(ctx context.Context, operation string, payload, out any) error {
	logger := infrastructure.LoggerWithContext(ctx)
	start := time.Now()

	err := c.doPost(ctx, operation, payload, out)

	kind := license.AuthorityErrorKind("")
	var ae *license.AuthorityError
	if errors.As(err, &ae) {
		kind = ae.Kind
	}
	c.metrics.RecordAuthorityRequest(ctx, operation, kind)

	if err != nil {
		logger.WarnContext(ctx, "Authority request failed",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
	} else {
		logger.DebugContext(ctx, "Authority request completed",
			slog.String("operation", operation),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
	return err
}

func (c *Client) doPost(ctx context.Context, operation string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return c.transportError(ctx, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &license.AuthorityError{
			Kind:   license.KindNetworkUnavailable,
			Detail: "failed to encode request",
			Err:    err,
		}
	}

	url := c.baseURL + "/" + operation
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &license.AuthorityError{
			Kind:   license.KindNetworkUnavailable,
			Detail: "failed to build request",
			Err:    err,
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "nexuscli/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.transportError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		return &license.AuthorityError{
			Kind:   license.KindServerRejected,
			Detail: rejectionDetail(resp.StatusCode, data),
		}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &license.AuthorityError{
				Kind:   license.KindServerRejected,
				Detail: "malformed response from authority",
				Err:    err,
			}
		}
	}
	return nil
}

// transportError classifies a failure that prevented an answer: a deadline
// is a timeout, anything else is the network.
func (c *Client) transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &license.AuthorityError{
			Kind:   license.KindTimeout,
			Detail: "authority did not respond in time",
			Err:    err,
		}
	}
	return &license.AuthorityError{
		Kind:   license.KindNetworkUnavailable,
		Detail: "could not reach authority",
		Err:    err,
	}
}

// rejectionDetail extracts a human-readable reason from a non-200 body.
func rejectionDetail(status int, body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		if er.Error != "" {
			return er.Error
		}
		if er.Message != "" {
			return er.Message
		}
	}
	return fmt.Sprintf("authority returned status %d", status)
}
