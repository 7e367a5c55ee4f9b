package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// LicenseDir returns the per-user directory holding the encrypted license
// file, creating it on first use. The directory lives under the user's home
// (~/.nexus) so the license survives application upgrades and reinstalls.
func LicenseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user home directory: %w", err)
	}

	dir := filepath.Join(home, LicenseDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create license directory: %w", err)
	}
	return dir, nil
}

// LicensePath returns the full path of the encrypted license file.
func LicensePath() (string, error) {
	dir, err := LicenseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, LicenseFileName), nil
}

// FileExists reports whether the given path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
