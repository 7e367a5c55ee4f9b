package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/keygen-sh/machineid"

	"nexuscli/internal/config"
)

// unknownComponent is substituted for any identity source that cannot be read.
// Using a fixed sentinel keeps the digest deterministic on machines where a
// source is permanently unavailable.
const unknownComponent = "UNKNOWN"

// DeviceFingerprint represents device identification information
type DeviceFingerprint struct {
	Fingerprint string    `json:"fingerprint"`
	MachineID   string    `json:"machine_id"`
	CPUID       string    `json:"cpu_id"`
	DiskSerial  string    `json:"disk_serial"`
	Hostname    string    `json:"hostname"`
	OS          string    `json:"os"`
	GeneratedAt time.Time `json:"generated_at"`
}

// FingerprintManager derives a stable hardware fingerprint for license
// binding. Generation is cached for the session: two calls on the same
// machine in the same process always agree.
type FingerprintManager struct {
	cache       *DeviceFingerprint
	cacheMutex  sync.RWMutex
	cacheExpiry time.Time
	cacheTTL    time.Duration
}

// NewFingerprintManager creates a new fingerprint manager with caching
func NewFingerprintManager() *FingerprintManager {
	return &FingerprintManager{
		cacheTTL: 1 * time.Hour,
	}
}

// CurrentFingerprint returns the hex digest identifying this machine. It
// never fails: every unavailable source degrades to a sentinel, and in the
// worst case the digest is derived from the MAC-address fallback alone.
func (fm *FingerprintManager) CurrentFingerprint() string {
	return fm.Generate().Fingerprint
}

// Generate builds (or returns the cached) device fingerprint by combining
// hardware factors in fixed order and hashing them.
func (fm *FingerprintManager) Generate() *DeviceFingerprint {
	fm.cacheMutex.RLock()
	if fm.cache != nil && time.Now().Before(fm.cacheExpiry) {
		cached := *fm.cache
		fm.cacheMutex.RUnlock()
		return &cached
	}
	fm.cacheMutex.RUnlock()

	start := time.Now()

	machineID := fm.getMachineID()
	cpuID := fm.getCPUID()
	diskSerial := fm.getDiskSerial()
	hostname := fm.getHostname()

	// Fixed component order; changing it invalidates every issued binding.
	combined := strings.Join([]string{
		machineID,
		cpuID,
		diskSerial,
		hostname,
		runtime.GOOS,
	}, "|")

	hash := sha256.Sum256([]byte(combined))

	fp := &DeviceFingerprint{
		Fingerprint: hex.EncodeToString(hash[:]),
		MachineID:   machineID,
		CPUID:       cpuID,
		DiskSerial:  diskSerial,
		Hostname:    hostname,
		OS:          runtime.GOOS,
		GeneratedAt: time.Now(),
	}

	fm.cacheMutex.Lock()
	fm.cache = fp
	fm.cacheExpiry = time.Now().Add(fm.cacheTTL)
	fm.cacheMutex.Unlock()

	slog.Debug("Device fingerprint generated",
		slog.String("fingerprint_prefix", fp.Fingerprint[:8]),
		slog.String("os", fp.OS),
		slog.Duration("generation_time", time.Since(start)),
	)

	return fp
}

// Matches compares the current device fingerprint against a stored one.
func (fm *FingerprintManager) Matches(storedFingerprint string) bool {
	return fm.CurrentFingerprint() == storedFingerprint
}

// getMachineID retrieves the platform machine identifier. machineid hashes
// the raw ID with the product name so the value is app-scoped and cannot be
// correlated across products.
func (fm *FingerprintManager) getMachineID() string {
	id, err := machineid.ProtectedID(config.ProductName)
	if err == nil && id != "" {
		return id
	}

	slog.Warn("Failed to read platform machine ID, using MAC fallback",
		slog.Any("error", err),
	)

	if mac := fm.getMACAddress(); mac != "" {
		return mac
	}
	return unknownComponent
}

// getMACAddress returns the MAC of the first up, non-loopback interface.
// Secondary identity source only; interface ordering is not stable enough to
// be the primary.
func (fm *FingerprintManager) getMACAddress() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac
		}
	}

	for _, iface := range interfaces {
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac
		}
	}
	return ""
}

// getHostname retrieves the normalized machine hostname
func (fm *FingerprintManager) getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return unknownComponent
	}
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return unknownComponent
	}
	return hostname
}

// getCPUID retrieves CPU identification information (OS-specific)
func (fm *FingerprintManager) getCPUID() string {
	switch runtime.GOOS {
	case "windows":
		if procID := os.Getenv("PROCESSOR_IDENTIFIER"); procID != "" {
			return shortHash(procID)
		}
	case "linux":
		if data, err := os.ReadFile("/proc/cpuinfo"); err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				if strings.HasPrefix(line, "model name") || strings.HasPrefix(line, "Serial") {
					return shortHash(line)
				}
			}
		}
	}
	// Architecture-level identity is the floor for every platform.
	return shortHash(fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH))
}

// getDiskSerial retrieves a root-disk serial where the platform exposes one
func (fm *FingerprintManager) getDiskSerial() string {
	if runtime.GOOS == "linux" {
		// sysfs exposes serials for virtio and NVMe devices
		for _, path := range []string{
			"/sys/block/sda/device/serial",
			"/sys/block/vda/serial",
			"/sys/block/nvme0n1/device/serial",
		} {
			if data, err := os.ReadFile(path); err == nil {
				if serial := strings.TrimSpace(string(data)); serial != "" {
					return serial
				}
			}
		}
	}
	return unknownComponent
}

// Components returns the individual identity sources for support diagnostics
func (fm *FingerprintManager) Components() map[string]string {
	fp := fm.Generate()
	return map[string]string{
		"machine_id":  fp.MachineID,
		"cpu_id":      fp.CPUID,
		"disk_serial": fp.DiskSerial,
		"hostname":    fp.Hostname,
		"os":          fp.OS,
	}
}

// ClearCache clears the cached fingerprint
func (fm *FingerprintManager) ClearCache() {
	fm.cacheMutex.Lock()
	defer fm.cacheMutex.Unlock()

	fm.cache = nil
	fm.cacheExpiry = time.Time{}
}

// shortHash normalizes a raw identity source to a fixed-length token
func shortHash(raw string) string {
	hash := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(hash[:8])
}
