package discovery

import "fmt"

// DeviceUnreachableError means an explicitly targeted device did not
// verify as a charger within the timeout.
type DeviceUnreachableError struct {
	Target string
	Err    error
}

func (e *DeviceUnreachableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device %s unreachable or not a charger: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("device %s unreachable or not a charger", e.Target)
}

func (e *DeviceUnreachableError) Unwrap() error { return e.Err }

// NoDevicesFoundError means discovery finished without a single
// verified charger. Recoverable: the caller should suggest targeting an
// IP directly.
type NoDevicesFoundError struct {
	Window string // discovery window, for the message
}

func (e *NoDevicesFoundError) Error() string {
	return fmt.Sprintf("no chargers found on the local network (listened %s)", e.Window)
}
