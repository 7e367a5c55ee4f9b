package security

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestCurrentFingerprintShape(t *testing.T) {
	fm := NewFingerprintManager()

	fp := fm.CurrentFingerprint()
	assert.Regexp(t, hexDigest, fp)
}

func TestFingerprintDeterministic(t *testing.T) {
	fm := NewFingerprintManager()

	first := fm.CurrentFingerprint()
	second := fm.CurrentFingerprint()
	assert.Equal(t, first, second)

	// Same answer after the cache is dropped: the digest depends only on the
	// machine, not on process state.
	fm.ClearCache()
	third := fm.CurrentFingerprint()
	assert.Equal(t, first, third)
}

func TestFingerprintAgreesAcrossManagers(t *testing.T) {
	a := NewFingerprintManager()
	b := NewFingerprintManager()

	assert.Equal(t, a.CurrentFingerprint(), b.CurrentFingerprint())
}

func TestMatches(t *testing.T) {
	fm := NewFingerprintManager()

	assert.True(t, fm.Matches(fm.CurrentFingerprint()))
	assert.False(t, fm.Matches("0000000000000000000000000000000000000000000000000000000000000000"))
}

func TestComponents(t *testing.T) {
	fm := NewFingerprintManager()

	components := fm.Components()
	for _, key := range []string{"machine_id", "cpu_id", "disk_serial", "hostname", "os"} {
		require.Contains(t, components, key)
		assert.NotEmpty(t, components[key])
	}
}

func TestGeneratePopulatesAllFields(t *testing.T) {
	fm := NewFingerprintManager()

	fp := fm.Generate()
	require.NotNil(t, fp)
	assert.Regexp(t, hexDigest, fp.Fingerprint)
	assert.NotEmpty(t, fp.MachineID)
	assert.NotEmpty(t, fp.CPUID)
	assert.NotEmpty(t, fp.Hostname)
	assert.NotEmpty(t, fp.OS)
	assert.False(t, fp.GeneratedAt.IsZero())
}
