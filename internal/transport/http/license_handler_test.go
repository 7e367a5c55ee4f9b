package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexuscli/internal/config"
	"nexuscli/internal/license"
	"nexuscli/internal/security"
)

// scriptedAuthority lets each test control the authority's answers.
type scriptedAuthority struct {
	activateFn func(ctx context.Context, req license.ActivationRequest) (*license.EntitlementRecord, error)
}

func (s *scriptedAuthority) Activate(ctx context.Context, req license.ActivationRequest) (*license.EntitlementRecord, error) {
	if s.activateFn == nil {
		return nil, &license.AuthorityError{Kind: license.KindNetworkUnavailable, Detail: "unreachable"}
	}
	return s.activateFn(ctx, req)
}

func (s *scriptedAuthority) Validate(ctx context.Context, licenseKey, hardwareID, product string) (license.ValidityAssertion, error) {
	return license.ValidityAssertion{Valid: true}, nil
}

func (s *scriptedAuthority) Deactivate(ctx context.Context, licenseKey, hardwareID string) error {
	return nil
}

func newTestRouter(t *testing.T, auth *scriptedAuthority) (*chi.Mux, *license.Manager) {
	t.Helper()

	cfg := config.LicenseConfig{
		OfflineGraceDays:         7,
		OnlineCheckIntervalHours: 24,
		AuthorityBaseURL:         "https://authority.invalid",
	}
	store := license.NewStore(filepath.Join(t.TempDir(), "license.dat"))
	manager := license.NewManager(cfg, store, auth, security.NewFingerprintManager())

	handler := NewLicenseHandler(manager, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	r.Mount("/api/license", handler.Routes())
	return r, manager
}

func issuedRecord(req license.ActivationRequest) *license.EntitlementRecord {
	now := time.Now().UTC().Truncate(time.Second)
	expiry := now.Add(365 * 24 * time.Hour)
	return &license.EntitlementRecord{
		LicenseKey:    req.LicenseKey,
		CustomerEmail: req.CustomerEmail,
		Product:       req.Product,
		Version:       req.Version,
		LicenseType:   license.TypeProfessional,
		Features:      []string{"transform", "import", "export", "api"},
		HardwareID:    req.HardwareID,
		IssuedAt:      now,
		ExpiresAt:     &expiry,
	}
}

func postJSON(t *testing.T, router http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStatusWithoutLicense(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedAuthority{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/license", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.License.Licensed)
	assert.False(t, body.Verdict.Valid)
	assert.Equal(t, license.ReasonNoLicenseFound, body.Verdict.Reason)
	assert.NotEmpty(t, body.Message)
}

func TestActivateLifecycle(t *testing.T) {
	auth := &scriptedAuthority{activateFn: func(ctx context.Context, req license.ActivationRequest) (*license.EntitlementRecord, error) {
		return issuedRecord(req), nil
	}}
	router, _ := newTestRouter(t, auth)

	rec := postJSON(t, router, "/api/license/activate", map[string]string{
		"license_key":    "AAAA-BBBB-CCCC-DDDD",
		"customer_email": "customer@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var activated ActivationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &activated))
	assert.True(t, activated.Success)
	require.NotNil(t, activated.LicenseInfo)
	assert.True(t, activated.LicenseInfo.Licensed)
	assert.Equal(t, license.TypeProfessional, activated.LicenseInfo.LicenseType)

	// Status now reports a valid license.
	statusRec := httptest.NewRecorder()
	router.ServeHTTP(statusRec, httptest.NewRequest(http.MethodGet, "/api/license", nil))
	var status StatusResponse
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &status))
	assert.True(t, status.Verdict.Valid)

	// Deactivate removes it again.
	deactivateRec := postJSON(t, router, "/api/license/deactivate", map[string]string{})
	require.Equal(t, http.StatusOK, deactivateRec.Code)

	statusRec = httptest.NewRecorder()
	router.ServeHTTP(statusRec, httptest.NewRequest(http.MethodGet, "/api/license", nil))
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &status))
	assert.False(t, status.Verdict.Valid)
}

func TestActivateValidation(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedAuthority{})

	tests := []struct {
		name    string
		payload map[string]string
	}{
		{name: "missing key", payload: map[string]string{"customer_email": "a@b.com"}},
		{name: "bad email", payload: map[string]string{"license_key": "AAAA-BBBB-CCCC-DDDD", "customer_email": "not-an-email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, router, "/api/license/activate", tt.payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestActivateMalformedKey(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedAuthority{})

	rec := postJSON(t, router, "/api/license/activate", map[string]string{
		"license_key": "definitely-wrong",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivateAuthorityUnavailable(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedAuthority{})

	rec := postJSON(t, router, "/api/license/activate", map[string]string{
		"license_key": "AAAA-BBBB-CCCC-DDDD",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHardwareIDEndpoint(t *testing.T) {
	router, manager := newTestRouter(t, &scriptedAuthority{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/license/hardware-id", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body HardwareIDResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, manager.HardwareID(), body.HardwareID)
	assert.Len(t, body.HardwareID, 64)
}
