package config

// Product identity. These are compile-time constants: a given binary is built
// for exactly one product and version, and the license record must match both.
const (
	ProductName    = "NexusSkyTransform"
	ProductVersion = "1.0.0"
)

// License file name under the per-user configuration directory.
const (
	LicenseDirName  = ".nexus"
	LicenseFileName = "license.dat"
)

// Default license policy values. Grace and check interval are deliberately
// conservative: a machine that cannot reach the authority keeps working for
// OfflineGraceDays measured from the last confirmed validation, not from the
// last attempt.
const (
	DefaultOfflineGraceDays         = 7
	DefaultOnlineCheckIntervalHours = 24
	DefaultAuthorityBaseURL         = "https://license.nexussky.io/api/v1"
)
