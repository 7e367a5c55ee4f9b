package license

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// LicenseType identifies the commercial tier of a license.
type LicenseType string

const (
	TypeTrial        LicenseType = "trial"
	TypeStandard     LicenseType = "standard"
	TypeProfessional LicenseType = "professional"
	TypeEnterprise   LicenseType = "enterprise"
)

// featureCatalog maps each license type to the feature tags it may grant.
// A record's features must be a subset of its type's catalog entry.
var featureCatalog = map[LicenseType][]string{
	TypeTrial:        {"transform", "import", "export"},
	TypeStandard:     {"transform", "import", "export"},
	TypeProfessional: {"transform", "import", "export", "api", "batch"},
	TypeEnterprise:   {"transform", "import", "export", "api", "batch", "cloud", "advanced"},
}

// licenseKeyPattern matches four dash-separated groups of four uppercase hex
// characters, e.g. AAAA-BBBB-CCCC-DDDD.
var licenseKeyPattern = regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)

// EntitlementRecord represents one issued license as persisted locally and as
// exchanged with the remote authority. Field names follow the wire contract.
type EntitlementRecord struct {
	LicenseKey    string `json:"license_key"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email"`
	Company       string `json:"company,omitempty"`

	Product string `json:"product"`
	Version string `json:"version"`

	LicenseType LicenseType `json:"license_type"`
	Features    []string    `json:"features"`
	MaxUsers    int         `json:"max_users"`

	// HardwareID is set only after a successful activation.
	HardwareID string `json:"hardware_id"`

	IssuedAt        time.Time  `json:"issued_date"`
	ExpiresAt       *time.Time `json:"expiry_date,omitempty"`
	LastValidatedAt time.Time  `json:"last_validated"`

	ActivationCount int `json:"activation_count"`
	MaxActivations  int `json:"max_activations"`

	IsTrial     bool `json:"is_trial"`
	IsFloating  bool `json:"is_floating"`
	OfflineMode bool `json:"offline_mode"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// ValidateKeyFormat checks the XXXX-XXXX-XXXX-XXXX uppercase-hex key shape.
func ValidateKeyFormat(licenseKey string) error {
	if licenseKey == "" {
		return fmt.Errorf("license key cannot be empty")
	}
	if !licenseKeyPattern.MatchString(licenseKey) {
		return fmt.Errorf("license key must be four dash-separated groups of four uppercase hex characters")
	}
	return nil
}

// NormalizeKey uppercases a key and restores dashes if the user pasted it
// without them.
func NormalizeKey(licenseKey string) string {
	clean := strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(licenseKey, "-", ""), " ", ""))
	if len(clean) != 16 {
		return strings.ToUpper(strings.TrimSpace(licenseKey))
	}
	return fmt.Sprintf("%s-%s-%s-%s", clean[0:4], clean[4:8], clean[8:12], clean[12:16])
}

// GenerateKey derives a fresh license key from the customer email, the
// current time and 8 random bytes. Key issuance normally happens on the
// authority; this exists for offline tooling and tests.
func GenerateKey(customerEmail string) (string, error) {
	random := make([]byte, 8)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("failed to generate key entropy: %w", err)
	}

	combined := fmt.Sprintf("%s|%d|%s", customerEmail, time.Now().Unix(), hex.EncodeToString(random))
	digest := sha256.Sum256([]byte(combined))
	raw := strings.ToUpper(hex.EncodeToString(digest[:8]))

	return fmt.Sprintf("%s-%s-%s-%s", raw[0:4], raw[4:8], raw[8:12], raw[12:16]), nil
}

// IsExpired reports whether the record's expiry, if any, has passed.
// A nil ExpiresAt means a perpetual license.
func (r *EntitlementRecord) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// DaysRemaining returns the whole days until expiry, or -1 for perpetual
// licenses. Expired records return 0.
func (r *EntitlementRecord) DaysRemaining(now time.Time) int {
	if r.ExpiresAt == nil {
		return -1
	}
	remaining := r.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Hours() / 24)
}

// HasFeature reports whether the record grants the named feature tag.
func (r *EntitlementRecord) HasFeature(name string) bool {
	for _, f := range r.Features {
		if f == name {
			return true
		}
	}
	return false
}

// Validate checks the record's internal invariants. Called on records
// received from the authority before they are persisted.
func (r *EntitlementRecord) Validate() error {
	if err := ValidateKeyFormat(r.LicenseKey); err != nil {
		return err
	}
	if r.Product == "" {
		return fmt.Errorf("record has no product")
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(r.IssuedAt) {
		return fmt.Errorf("expiry date %s is not after issue date %s",
			r.ExpiresAt.Format(time.RFC3339), r.IssuedAt.Format(time.RFC3339))
	}

	catalog, ok := featureCatalog[r.LicenseType]
	if !ok {
		return fmt.Errorf("unknown license type %q", r.LicenseType)
	}
	allowed := make(map[string]bool, len(catalog))
	for _, f := range catalog {
		allowed[f] = true
	}
	for _, f := range r.Features {
		if !allowed[f] {
			return fmt.Errorf("feature %q is not part of the %s tier", f, r.LicenseType)
		}
	}
	return nil
}

// Clone returns a deep copy so callers can hand records out without sharing
// the metadata map or feature slice.
func (r *EntitlementRecord) Clone() *EntitlementRecord {
	clone := *r
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		clone.ExpiresAt = &t
	}
	if r.Features != nil {
		clone.Features = append([]string(nil), r.Features...)
	}
	if r.Metadata != nil {
		clone.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
