package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

const (
	busName            = "org.bluez"
	deviceIface        = "org.bluez.Device1"
	propsIface         = "org.freedesktop.DBus.Properties"
	objectManagerIface = "org.freedesktop.DBus.ObjectManager"

	errUnknownObject = "org.freedesktop.DBus.Error.UnknownObject"
)

// BlueZScanner reads device state from the BlueZ daemon over the system
// D-Bus. RSSI is only populated while the adapter is discovering, so most
// readings carry the Connected flag alone.
type BlueZScanner struct {
	conn    *dbus.Conn
	adapter string
	logger  zerolog.Logger
}

// NewBlueZScanner connects to the system bus and verifies that BlueZ is
// present. adapter is the controller name, e.g. "hci0".
func NewBlueZScanner(adapter string, logger zerolog.Logger) (*BlueZScanner, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}

	// Quick check that BlueZ is on the bus.
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	found := false
	for _, n := range names {
		if n == busName {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return nil, fmt.Errorf("org.bluez not found on system bus — is bluetooth.service running?")
	}

	if adapter == "" {
		adapter = "hci0"
	}

	return &BlueZScanner{conn: conn, adapter: adapter, logger: logger}, nil
}

// adapterPath returns the object path of the configured controller.
func (s *BlueZScanner) adapterPath() string {
	return "/org/bluez/" + s.adapter
}

// devicePath converts a MAC address like "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func (s *BlueZScanner) devicePath(address string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(NormalizeAddress(address), ":", "_")
	return dbus.ObjectPath(s.adapterPath() + "/dev_" + escaped)
}

func (s *BlueZScanner) getProp(ctx context.Context, path dbus.ObjectPath, prop string) (dbus.Variant, error) {
	obj := s.conn.Object(busName, path)
	var v dbus.Variant
	err := obj.CallWithContext(ctx, propsIface+".Get", 0, deviceIface, prop).Store(&v)
	return v, err
}

// Check polls the Connected and RSSI properties of the target device. An
// unknown device object means the device was never paired on this adapter
// and is reported as absent rather than as an error.
func (s *BlueZScanner) Check(ctx context.Context, address string) (Reading, error) {
	path := s.devicePath(address)

	v, err := s.getProp(ctx, path, "Connected")
	if err != nil {
		if isDBusError(err, errUnknownObject) {
			return Reading{}, nil
		}
		return Reading{}, fmt.Errorf("get Connected for %s: %w", address, err)
	}

	reading := Reading{}
	if connected, ok := v.Value().(bool); ok {
		reading.Connected = connected
	}

	// RSSI disappears from the object as soon as discovery stops; treat
	// its absence as "no signal reading" and move on.
	if v, err := s.getProp(ctx, path, "RSSI"); err == nil {
		if rssi, ok := v.Value().(int16); ok {
			reading.RSSI = &rssi
		}
	}

	return reading, nil
}

// Devices walks the BlueZ object tree and returns every device object that
// belongs to the configured adapter.
func (s *BlueZScanner) Devices(ctx context.Context) ([]Device, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := s.conn.Object(busName, "/").
		CallWithContext(ctx, objectManagerIface+".GetManagedObjects", 0).
		Store(&objects)
	if err != nil {
		return nil, fmt.Errorf("get managed objects: %w", err)
	}

	prefix := s.adapterPath() + "/dev_"
	var devices []Device
	for path, ifaces := range objects {
		props, ok := ifaces[deviceIface]
		if !ok || !strings.HasPrefix(string(path), prefix) {
			continue
		}
		devices = append(devices, deviceFromProps(path, prefix, props))
	}

	s.logger.Debug().Int("count", len(devices)).Msg("Enumerated BlueZ devices")
	return devices, nil
}

// Close shuts down the D-Bus connection.
func (s *BlueZScanner) Close() error {
	return s.conn.Close()
}

func deviceFromProps(path dbus.ObjectPath, prefix string, props map[string]dbus.Variant) Device {
	d := Device{
		Address: strings.ReplaceAll(string(path)[len(prefix):], "_", ":"),
	}
	if v, ok := props["Address"]; ok {
		if addr, ok := v.Value().(string); ok {
			d.Address = NormalizeAddress(addr)
		}
	}
	if v, ok := props["Name"]; ok {
		d.Name, _ = v.Value().(string)
	}
	if v, ok := props["Connected"]; ok {
		d.Connected, _ = v.Value().(bool)
	}
	if v, ok := props["Paired"]; ok {
		d.Paired, _ = v.Value().(bool)
	}
	if v, ok := props["RSSI"]; ok {
		if rssi, ok := v.Value().(int16); ok {
			d.RSSI = &rssi
		}
	}
	return d
}

func isDBusError(err error, name string) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name == name
	}
	return false
}
