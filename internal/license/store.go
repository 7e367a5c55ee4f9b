package license

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"nexuscli/internal/security"
)

// ErrCorruptRecord indicates the persisted license could not be decrypted or
// parsed: wrong key, truncated file, or tampering. Callers treat it the same
// as a missing license.
var ErrCorruptRecord = errors.New("corrupt license record")

// Store persists the encrypted entitlement record to a single file under the
// per-user configuration directory. Writes are atomic (temp file + rename)
// so a crash mid-write never leaves a partial record, and the file is left
// owner-read-only.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store bound to the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the license file location.
func (s *Store) Path() string {
	return s.path
}

// Save serializes, encrypts and atomically persists the record.
func (s *Store) Save(record *EntitlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plaintext, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize license record: %w", err)
	}

	sealed, err := security.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt license record: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(sealed)

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create license directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".license-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp license file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write license file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync license file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close license file: %w", err)
	}

	if err := os.Chmod(tmpName, 0o400); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to restrict license file permissions: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace license file: %w", err)
	}
	return nil
}

// Load reads, decrypts and deserializes the record. Returns (nil, nil) when
// no license file exists; ErrCorruptRecord when the file cannot be decoded.
func (s *Store) Load() (*EntitlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read license file: %w", err)
	}

	sealed, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	plaintext, err := security.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	var record EntitlementRecord
	if err := json.Unmarshal(plaintext, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return &record, nil
}

// Delete removes the license file. Succeeds as a no-op when already absent.
func (s *Store) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove license file: %w", err)
	}
	return nil
}
