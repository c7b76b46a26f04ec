// Package bluetooth enumerates paired devices and reports per-poll
// proximity readings for a selected target device.
package bluetooth

import (
	"context"
	"strings"
)

// Reading is the result of a single proximity check of the target device.
// RSSI is nil when the backend cannot measure signal strength; the reading
// then degrades to a plain connected/disconnected flag.
type Reading struct {
	Connected bool
	RSSI      *int16
}

// Device describes a paired or known Bluetooth device as seen during the
// most recent enumeration. Records are rebuilt on every scan and never
// persisted; the most recent reading wins.
type Device struct {
	Address   string
	Name      string
	RSSI      *int16
	Connected bool
	Paired    bool
}

// Scanner queries the local Bluetooth stack.
type Scanner interface {
	// Check polls the current state of the device with the given address.
	// A device that is not known to the stack yields a zero Reading and a
	// nil error; callers treat it as absent.
	Check(ctx context.Context, address string) (Reading, error)

	// Devices enumerates the paired and recently seen devices.
	Devices(ctx context.Context) ([]Device, error)

	// Close releases the backend connection.
	Close() error
}

// NormalizeAddress upper-cases a Bluetooth MAC address so readings and
// config values compare reliably.
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}
