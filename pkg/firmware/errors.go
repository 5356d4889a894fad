package firmware

import "fmt"

// ConfigurationError means the firmware directory is missing or unreadable.
type ConfigurationError struct {
	Dir string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("firmware directory %s: %v", e.Dir, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// MissingFirmwareError means the directory has no main candidates or no
// rear candidates at all.
type MissingFirmwareError struct {
	Dir   string
	Board string // which side is missing: "main" or "rear"
}

func (e *MissingFirmwareError) Error() string {
	return fmt.Sprintf("no %s firmware files (%s_v*.signed.bin) in %s", e.Board, e.Board, e.Dir)
}

// VersionMismatchError means both sides have candidates but no version
// string appears on both.
type VersionMismatchError struct {
	Dir string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("no matching main/rear firmware versions in %s", e.Dir)
}

// FirmwareNotFoundError means an explicitly requested version is not
// among the discovered pairs.
type FirmwareNotFoundError struct {
	Version   string
	Available []string
}

func (e *FirmwareNotFoundError) Error() string {
	return fmt.Sprintf("firmware version %s not found (available: %v)", e.Version, e.Available)
}
