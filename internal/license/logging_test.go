package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskLicenseKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "canonical key", in: "AAAA-BBBB-CCCC-DDDD", want: "****-****-****-DDDD"},
		{name: "short value", in: "abc", want: "****"},
		{name: "long undashed value", in: "AAAABBBBCCCCDDDD", want: "****DDDD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maskLicenseKey(tt.in))
		})
	}
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "c***@example.com", maskEmail("customer@example.com"))
	assert.Equal(t, "***", maskEmail("not-an-email"))
	assert.Equal(t, "***", maskEmail(""))
}

func TestHashLicenseKeyStable(t *testing.T) {
	first := hashLicenseKey("AAAA-BBBB-CCCC-DDDD")
	second := hashLicenseKey("AAAA-BBBB-CCCC-DDDD")
	other := hashLicenseKey("1111-2222-3333-4444")

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
	assert.Len(t, first, 16)
	assert.NotContains(t, first, "AAAA")
}
