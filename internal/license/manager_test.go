package license

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"nexuscli/internal/config"
	"nexuscli/internal/security"
)

// fakeAuthority is a scriptable AuthorityClient that counts calls.
type fakeAuthority struct {
	activateFn   func(ctx context.Context, req ActivationRequest) (*EntitlementRecord, error)
	validateFn   func(ctx context.Context, licenseKey, hardwareID, product string) (ValidityAssertion, error)
	deactivateFn func(ctx context.Context, licenseKey, hardwareID string) error

	activateCalls   int
	validateCalls   int
	deactivateCalls int
}

func (f *fakeAuthority) Activate(ctx context.Context, req ActivationRequest) (*EntitlementRecord, error) {
	f.activateCalls++
	if f.activateFn == nil {
		return nil, &AuthorityError{Kind: KindNetworkUnavailable, Detail: "no activate script"}
	}
	return f.activateFn(ctx, req)
}

func (f *fakeAuthority) Validate(ctx context.Context, licenseKey, hardwareID, product string) (ValidityAssertion, error) {
	f.validateCalls++
	if f.validateFn == nil {
		return ValidityAssertion{}, &AuthorityError{Kind: KindNetworkUnavailable, Detail: "no validate script"}
	}
	return f.validateFn(ctx, licenseKey, hardwareID, product)
}

func (f *fakeAuthority) Deactivate(ctx context.Context, licenseKey, hardwareID string) error {
	f.deactivateCalls++
	if f.deactivateFn == nil {
		return nil
	}
	return f.deactivateFn(ctx, licenseKey, hardwareID)
}

type ManagerTestSuite struct {
	suite.Suite
	store     *Store
	authority *fakeAuthority
	manager   *Manager
	hardware  string
}

func (s *ManagerTestSuite) SetupTest() {
	s.store = NewStore(filepath.Join(s.T().TempDir(), "license.dat"))
	s.authority = &fakeAuthority{}

	fp := security.NewFingerprintManager()
	s.hardware = fp.CurrentFingerprint()

	cfg := config.LicenseConfig{
		OfflineGraceDays:         7,
		OnlineCheckIntervalHours: 24,
		AuthorityBaseURL:         "https://authority.invalid",
	}
	s.manager = NewManager(cfg, s.store, s.authority, fp)
}

// storedRecord persists a baseline valid record bound to this machine.
func (s *ManagerTestSuite) storedRecord(mutate func(r *EntitlementRecord)) *EntitlementRecord {
	now := time.Now().UTC().Truncate(time.Second)
	expiry := now.Add(365 * 24 * time.Hour)
	record := &EntitlementRecord{
		LicenseKey:      "AAAA-BBBB-CCCC-DDDD",
		CustomerEmail:   "customer@example.com",
		Product:         config.ProductName,
		Version:         config.ProductVersion,
		LicenseType:     TypeStandard,
		Features:        []string{"transform", "import", "export"},
		HardwareID:      s.hardware,
		IssuedAt:        now.Add(-48 * time.Hour),
		ExpiresAt:       &expiry,
		LastValidatedAt: now,
	}
	if mutate != nil {
		mutate(record)
	}
	require.NoError(s.T(), s.store.Save(record))
	return record
}

func (s *ManagerTestSuite) TestNoLicenseFound() {
	verdict := s.manager.IsValid(context.Background())

	assert.False(s.T(), verdict.Valid)
	assert.Equal(s.T(), ReasonNoLicenseFound, verdict.Reason)
	assert.Zero(s.T(), s.authority.validateCalls)
}

func (s *ManagerTestSuite) TestCorruptRecordTreatedAsNoLicense() {
	s.storedRecord(nil)
	// The stored file is read-only; replace it wholesale with garbage.
	require.NoError(s.T(), os.Remove(s.store.Path()))
	require.NoError(s.T(), os.WriteFile(s.store.Path(), []byte("not a license"), 0o600))

	verdict := s.manager.IsValid(context.Background())
	assert.False(s.T(), verdict.Valid)
	assert.Equal(s.T(), ReasonNoLicenseFound, verdict.Reason)
	assert.Zero(s.T(), s.authority.validateCalls)
}

func (s *ManagerTestSuite) TestHardwareMismatch() {
	s.storedRecord(func(r *EntitlementRecord) {
		r.HardwareID = "some-other-machine"
	})

	verdict := s.manager.IsValid(context.Background())

	assert.False(s.T(), verdict.Valid)
	assert.Equal(s.T(), ReasonHardwareMismatch, verdict.Reason)
	assert.Zero(s.T(), s.authority.validateCalls)
}

func (s *ManagerTestSuite) TestHardwareMismatchDominatesExpiry() {
	s.storedRecord(func(r *EntitlementRecord) {
		r.HardwareID = "some-other-machine"
		past := time.Now().UTC().Add(-time.Hour)
		r.ExpiresAt = &past
	})

	verdict := s.manager.IsValid(context.Background())
	assert.Equal(s.T(), ReasonHardwareMismatch, verdict.Reason)
}

func (s *ManagerTestSuite) TestFloatingLicenseSkipsHardwareCheck() {
	s.storedRecord(func(r *EntitlementRecord) {
		r.HardwareID = "some-other-machine"
		r.IsFloating = true
	})

	verdict := s.manager.IsValid(context.Background())
	assert.True(s.T(), verdict.Valid)
}

func (s *ManagerTestSuite) TestProductMismatch() {
	s.storedRecord(func(r *EntitlementRecord) {
		r.Product = "SomeOtherProduct"
	})

	verdict := s.manager.IsValid(context.Background())

	assert.False(s.T(), verdict.Valid)
	assert.Equal(s.T(), ReasonProductMismatch, verdict.Reason)
}

func (s *ManagerTestSuite) TestExpired() {
	past := time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Second)
	s.storedRecord(func(r *EntitlementRecord) {
		r.ExpiresAt = &past
	})

	verdict := s.manager.IsValid(context.Background())

	assert.False(s.T(), verdict.Valid)
	assert.Equal(s.T(), ReasonExpired, verdict.Reason)
	assert.True(s.T(), verdict.ExpiredAt.Equal(past))
}

func (s *ManagerTestSuite) TestExpiryDominatesOfflineMode() {
	past := time.Now().UTC().Add(-time.Hour)
	s.storedRecord(func(r *EntitlementRecord) {
		r.OfflineMode = true
		r.ExpiresAt = &past
	})

	verdict := s.manager.IsValid(context.Background())
	assert.Equal(s.T(), ReasonExpired, verdict.Reason)
}

func (s *ManagerTestSuite) TestOfflineModeNeverCallsAuthority() {
	s.storedRecord(func(r *EntitlementRecord) {
		r.OfflineMode = true
		// Long past the online check interval.
		r.LastValidatedAt = time.Now().UTC().Add(-90 * 24 * time.Hour)
	})

	verdict := s.manager.IsValid(context.Background())

	assert.True(s.T(), verdict.Valid)
	assert.False(s.T(), verdict.GraceWarning)
	assert.Zero(s.T(), s.authority.validateCalls)
}

func (s *ManagerTestSuite) TestRecentValidationSkipsAuthority() {
	s.storedRecord(func(r *EntitlementRecord) {
		r.LastValidatedAt = time.Now().UTC().Add(-time.Hour)
	})

	first := s.manager.IsValid(context.Background())
	second := s.manager.IsValid(context.Background())

	assert.True(s.T(), first.Valid)
	assert.True(s.T(), second.Valid)
	assert.Zero(s.T(), s.authority.validateCalls)
}

func (s *ManagerTestSuite) TestOnlineValidationSuccessUpdatesRecord() {
	stale := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Second)
	s.storedRecord(func(r *EntitlementRecord) {
		r.LastValidatedAt = stale
	})

	s.authority.validateFn = func(ctx context.Context, licenseKey, hardwareID, product string) (ValidityAssertion, error) {
		assert.Equal(s.T(), "AAAA-BBBB-CCCC-DDDD", licenseKey)
		assert.Equal(s.T(), s.hardware, hardwareID)
		assert.Equal(s.T(), config.ProductName, product)
		return ValidityAssertion{Valid: true}, nil
	}

	verdict := s.manager.IsValid(context.Background())
	require.True(s.T(), verdict.Valid)
	assert.False(s.T(), verdict.GraceWarning)
	assert.Equal(s.T(), 1, s.authority.validateCalls)

	reloaded, err := s.store.Load()
	require.NoError(s.T(), err)
	assert.True(s.T(), reloaded.LastValidatedAt.After(stale))

	// The refreshed timestamp makes the next check offline.
	s.manager.IsValid(context.Background())
	assert.Equal(s.T(), 1, s.authority.validateCalls)
}

func (s *ManagerTestSuite) TestAuthorityUnreachableWithinGrace() {
	s.storedRecord(func(r *EntitlementRecord) {
		// 6 days since last validation, 7 day grace: one day left.
		r.LastValidatedAt = time.Now().UTC().Add(-6 * 24 * time.Hour)
	})

	verdict := s.manager.IsValid(context.Background())

	assert.True(s.T(), verdict.Valid)
	assert.True(s.T(), verdict.GraceWarning)
	assert.Equal(s.T(), 1, verdict.GraceDaysRemaining)
}

func (s *ManagerTestSuite) TestAuthorityUnreachableBeyondGrace() {
	stale := time.Now().UTC().Add(-8 * 24 * time.Hour).Truncate(time.Second)
	s.storedRecord(func(r *EntitlementRecord) {
		r.LastValidatedAt = stale
	})

	verdict := s.manager.IsValid(context.Background())

	assert.False(s.T(), verdict.Valid)
	assert.Equal(s.T(), ReasonValidationFailed, verdict.Reason)
	assert.NotEmpty(s.T(), verdict.Detail)

	// A failed attempt must not move the grace clock.
	reloaded, err := s.store.Load()
	require.NoError(s.T(), err)
	assert.True(s.T(), reloaded.LastValidatedAt.Equal(stale))
}

func (s *ManagerTestSuite) TestServerRejectionFeedsGracePolicy() {
	s.storedRecord(func(r *EntitlementRecord) {
		r.LastValidatedAt = time.Now().UTC().Add(-2 * 24 * time.Hour)
	})

	s.authority.validateFn = func(ctx context.Context, licenseKey, hardwareID, product string) (ValidityAssertion, error) {
		return ValidityAssertion{Valid: false, Message: "license revoked"}, nil
	}

	verdict := s.manager.IsValid(context.Background())

	assert.True(s.T(), verdict.Valid)
	assert.True(s.T(), verdict.GraceWarning)
	assert.Equal(s.T(), 5, verdict.GraceDaysRemaining)
}

func (s *ManagerTestSuite) TestActivateHappyPath() {
	now := time.Now().UTC().Truncate(time.Second)

	s.authority.activateFn = func(ctx context.Context, req ActivationRequest) (*EntitlementRecord, error) {
		assert.Equal(s.T(), "AAAA-BBBB-CCCC-DDDD", req.LicenseKey)
		assert.Equal(s.T(), s.hardware, req.HardwareID)
		assert.Equal(s.T(), config.ProductName, req.Product)
		assert.NotEmpty(s.T(), req.Hostname)
		return &EntitlementRecord{
			LicenseKey:    req.LicenseKey,
			CustomerEmail: req.CustomerEmail,
			Product:       req.Product,
			Version:       req.Version,
			LicenseType:   TypeEnterprise,
			Features:      []string{"transform", "api", "cloud"},
			HardwareID:    req.HardwareID,
			IssuedAt:      now,
			// No expiry: a perpetual enterprise license.
		}, nil
	}

	record, err := s.manager.Activate(context.Background(), "aaaa bbbb cccc dddd", "customer@example.com")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), TypeEnterprise, record.LicenseType)
	assert.False(s.T(), record.LastValidatedAt.IsZero())

	ctx := context.Background()
	assert.True(s.T(), s.manager.IsValid(ctx).Valid)
	assert.True(s.T(), s.manager.HasFeature(ctx, "cloud"))
	assert.False(s.T(), s.manager.HasFeature(ctx, "batch"))
}

func (s *ManagerTestSuite) TestActivateRejectsMalformedKey() {
	_, err := s.manager.Activate(context.Background(), "not-a-key", "customer@example.com")

	require.Error(s.T(), err)
	assert.Zero(s.T(), s.authority.activateCalls)
}

func (s *ManagerTestSuite) TestActivateServerRejection() {
	s.authority.activateFn = func(ctx context.Context, req ActivationRequest) (*EntitlementRecord, error) {
		return nil, &AuthorityError{Kind: KindServerRejected, Detail: "already activated on another machine"}
	}

	_, err := s.manager.Activate(context.Background(), "AAAA-BBBB-CCCC-DDDD", "customer@example.com")

	require.Error(s.T(), err)
	assert.True(s.T(), IsServerRejection(err))

	record, loadErr := s.store.Load()
	require.NoError(s.T(), loadErr)
	assert.Nil(s.T(), record)
}

func (s *ManagerTestSuite) TestActivateRejectsInconsistentRecord() {
	s.authority.activateFn = func(ctx context.Context, req ActivationRequest) (*EntitlementRecord, error) {
		return &EntitlementRecord{
			LicenseKey:  req.LicenseKey,
			Product:     req.Product,
			LicenseType: TypeStandard,
			Features:    []string{"cloud"},
		}, nil
	}

	_, err := s.manager.Activate(context.Background(), "AAAA-BBBB-CCCC-DDDD", "customer@example.com")
	require.Error(s.T(), err)
}

func (s *ManagerTestSuite) TestDeactivateRemovesRecord() {
	s.storedRecord(nil)

	require.NoError(s.T(), s.manager.Deactivate(context.Background()))
	assert.Equal(s.T(), 1, s.authority.deactivateCalls)

	record, err := s.store.Load()
	require.NoError(s.T(), err)
	assert.Nil(s.T(), record)
}

func (s *ManagerTestSuite) TestDeactivateWithUnreachableAuthority() {
	s.storedRecord(nil)
	s.authority.deactivateFn = func(ctx context.Context, licenseKey, hardwareID string) error {
		return &AuthorityError{Kind: KindNetworkUnavailable, Detail: "connection refused"}
	}

	// Local deletion must still succeed.
	require.NoError(s.T(), s.manager.Deactivate(context.Background()))

	record, err := s.store.Load()
	require.NoError(s.T(), err)
	assert.Nil(s.T(), record)
}

func (s *ManagerTestSuite) TestDeactivateWithoutRecord() {
	require.NoError(s.T(), s.manager.Deactivate(context.Background()))
	assert.Zero(s.T(), s.authority.deactivateCalls)
}

func (s *ManagerTestSuite) TestInfo() {
	empty := s.manager.Info(context.Background())
	assert.False(s.T(), empty.Licensed)

	s.storedRecord(nil)
	info := s.manager.Info(context.Background())
	assert.True(s.T(), info.Licensed)
	assert.Equal(s.T(), TypeStandard, info.LicenseType)
	assert.False(s.T(), info.Perpetual)
	assert.Positive(s.T(), info.DaysRemaining)
}

func (s *ManagerTestSuite) TestHardwareID() {
	assert.Equal(s.T(), s.hardware, s.manager.HardwareID())
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}

func TestVerdictMessages(t *testing.T) {
	assert.Equal(t, "license is valid", validVerdict().Message())
	assert.Contains(t, graceVerdict(3).Message(), "3 day(s)")
	assert.Contains(t, invalidVerdict(ReasonNoLicenseFound, "").Message(), "activate")
	assert.Contains(t, expiredVerdict(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)).Message(), "2026-01-02")
	assert.Contains(t, invalidVerdict(ReasonValidationFailed, "boom").Message(), "boom")
}
