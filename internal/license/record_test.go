package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKeyFormat(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "valid key", key: "AAAA-BBBB-CCCC-DDDD", wantErr: false},
		{name: "valid numeric key", key: "0123-4567-89AB-CDEF", wantErr: false},
		{name: "empty", key: "", wantErr: true},
		{name: "lowercase", key: "aaaa-bbbb-cccc-dddd", wantErr: true},
		{name: "missing dashes", key: "AAAABBBBCCCCDDDD", wantErr: true},
		{name: "wrong group length", key: "AAA-BBBB-CCCC-DDDD", wantErr: true},
		{name: "non-hex characters", key: "GGGG-BBBB-CCCC-DDDD", wantErr: true},
		{name: "too many groups", key: "AAAA-BBBB-CCCC-DDDD-EEEE", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKeyFormat(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "already canonical", in: "AAAA-BBBB-CCCC-DDDD", want: "AAAA-BBBB-CCCC-DDDD"},
		{name: "lowercase", in: "aaaa-bbbb-cccc-dddd", want: "AAAA-BBBB-CCCC-DDDD"},
		{name: "no dashes", in: "AAAABBBBCCCCDDDD", want: "AAAA-BBBB-CCCC-DDDD"},
		{name: "spaces", in: "AAAA BBBB CCCC DDDD", want: "AAAA-BBBB-CCCC-DDDD"},
		{name: "wrong length left as-is", in: "short", want: "SHORT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeKey(tt.in))
		})
	}
}

func TestGenerateKey(t *testing.T) {
	first, err := GenerateKey("user@example.com")
	require.NoError(t, err)
	require.NoError(t, ValidateKeyFormat(first))

	second, err := GenerateKey("user@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestIsExpiredAndDaysRemaining(t *testing.T) {
	now := time.Now().UTC()

	perpetual := &EntitlementRecord{}
	assert.False(t, perpetual.IsExpired(now))
	assert.Equal(t, -1, perpetual.DaysRemaining(now))

	future := now.Add(10*24*time.Hour + time.Hour)
	active := &EntitlementRecord{ExpiresAt: &future}
	assert.False(t, active.IsExpired(now))
	assert.Equal(t, 10, active.DaysRemaining(now))

	past := now.Add(-time.Hour)
	expired := &EntitlementRecord{ExpiresAt: &past}
	assert.True(t, expired.IsExpired(now))
	assert.Equal(t, 0, expired.DaysRemaining(now))
}

func TestHasFeature(t *testing.T) {
	record := &EntitlementRecord{Features: []string{"transform", "cloud"}}

	assert.True(t, record.HasFeature("cloud"))
	assert.False(t, record.HasFeature("batch"))
	assert.False(t, record.HasFeature(""))
}

func TestRecordValidate(t *testing.T) {
	now := time.Now().UTC()
	expiry := now.Add(365 * 24 * time.Hour)

	base := func() *EntitlementRecord {
		return &EntitlementRecord{
			LicenseKey:  "AAAA-BBBB-CCCC-DDDD",
			Product:     "NexusSkyTransform",
			Version:     "1.0.0",
			LicenseType: TypeStandard,
			Features:    []string{"transform", "import"},
			IssuedAt:    now,
			ExpiresAt:   &expiry,
		}
	}

	t.Run("valid record", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("bad key", func(t *testing.T) {
		r := base()
		r.LicenseKey = "nope"
		assert.Error(t, r.Validate())
	})

	t.Run("missing product", func(t *testing.T) {
		r := base()
		r.Product = ""
		assert.Error(t, r.Validate())
	})

	t.Run("expiry before issue", func(t *testing.T) {
		r := base()
		before := now.Add(-time.Hour)
		r.ExpiresAt = &before
		assert.Error(t, r.Validate())
	})

	t.Run("unknown license type", func(t *testing.T) {
		r := base()
		r.LicenseType = LicenseType("platinum")
		assert.Error(t, r.Validate())
	})

	t.Run("feature outside tier", func(t *testing.T) {
		r := base()
		r.Features = append(r.Features, "cloud")
		assert.Error(t, r.Validate())
	})

	t.Run("enterprise grants cloud", func(t *testing.T) {
		r := base()
		r.LicenseType = TypeEnterprise
		r.Features = []string{"transform", "cloud", "advanced"}
		assert.NoError(t, r.Validate())
	})
}

func TestClone(t *testing.T) {
	expiry := time.Now().UTC().Add(time.Hour)
	original := &EntitlementRecord{
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
		Features:   []string{"transform"},
		ExpiresAt:  &expiry,
		Metadata:   map[string]string{"channel": "direct"},
	}

	clone := original.Clone()
	require.Equal(t, original, clone)

	clone.Features[0] = "mutated"
	clone.Metadata["channel"] = "mutated"
	*clone.ExpiresAt = expiry.Add(time.Hour)

	assert.Equal(t, "transform", original.Features[0])
	assert.Equal(t, "direct", original.Metadata["channel"])
	assert.True(t, original.ExpiresAt.Equal(expiry))
}
