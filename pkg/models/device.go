package models

import (
	"fmt"
	"time"
)

// UnknownValue is reported when a device does not expose an identifier
// or when a post-update version could not be confirmed.
const UnknownValue = "Unknown"

// DeviceDescriptor represents a located, verified charger on the network
type DeviceDescriptor struct {
	Host            string // IP address or tunnel hostname
	Port            int    // HTTP port, 8000 unless the target URL said otherwise
	Scheme          string // "http", or "https" for tunnel targets
	Name            string // Device's self-reported name
	FirmwareVersion string // Firmware version reported at verification time
	ID              string // Serial number or MAC, UnknownValue when absent
}

// BaseURL returns the device's HTTP base, e.g. "http://10.0.0.12:8000".
func (d DeviceDescriptor) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d", d.Scheme, d.Host, d.Port)
}

// String returns a short human-readable identity for logs and reports.
func (d DeviceDescriptor) String() string {
	if d.Name != "" {
		return fmt.Sprintf("%s (%s)", d.Name, d.Host)
	}
	return d.Host
}

// FirmwareFile represents one signed firmware artifact on disk
type FirmwareFile struct {
	Path    string    // Absolute or scan-relative file path
	Board   string    // Board designator: "main" or "rear"
	Version string    // Version parsed from the filename, e.g. "1.8.3-beta4"
	ModTime time.Time // File modification time
}

// FirmwarePair is a matched main+rear firmware set sharing one version,
// the atomic unit of a full update.
type FirmwarePair struct {
	Version string       // Shared version string
	Main    FirmwareFile // Main board image
	Rear    FirmwareFile // Rear board image
}

// ModTime returns the later of the two members' modification times,
// used for newest-first ordering.
func (p FirmwarePair) ModTime() time.Time {
	if p.Rear.ModTime.After(p.Main.ModTime) {
		return p.Rear.ModTime
	}
	return p.Main.ModTime
}

// UpdateResult is the outcome of one orchestrated update attempt
type UpdateResult struct {
	Device          string // Stable device identifier (or host when unknown)
	Success         bool   // Whether steps through the rear reboot completed
	PreviousVersion string // Firmware version captured before the update
	NewVersion      string // Version confirmed afterwards, or UnknownValue
	TargetVersion   string // Version the firmware pair was supposed to install
	FailureReason   string // Populated when Success is false
}
