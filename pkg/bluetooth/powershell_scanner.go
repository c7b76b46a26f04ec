package bluetooth

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// listDevicesScript dumps the paired Bluetooth devices known to Windows.
// PnP status "OK" means the device currently has an active connection.
const listDevicesScript = `Get-PnpDevice -Class Bluetooth | ` +
	`Select-Object FriendlyName, InstanceId, Status | ConvertTo-Json -Compress`

// instanceAddrPattern extracts the 12 hex digits of the device MAC from a
// PnP instance id such as "BTHENUM\DEV_F0BE25B9F82C\...".
var instanceAddrPattern = regexp.MustCompile(`DEV_([0-9A-F]{12})`)

// PowerShellScanner shells out to PowerShell on Windows and derives
// connection state from the PnP device tree. It has no access to signal
// strength, so readings carry the Connected flag only.
type PowerShellScanner struct {
	logger zerolog.Logger
}

// NewPowerShellScanner creates a PowerShell-backed scanner.
func NewPowerShellScanner(logger zerolog.Logger) *PowerShellScanner {
	return &PowerShellScanner{logger: logger}
}

type pnpDevice struct {
	FriendlyName string `json:"FriendlyName"`
	InstanceId   string `json:"InstanceId"`
	Status       string `json:"Status"`
}

func (s *PowerShellScanner) run(ctx context.Context, script string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "powershell",
		"-NoProfile", "-ExecutionPolicy", "Bypass", "-Command", script)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("powershell: %w", err)
	}
	return out, nil
}

// parsePnpDevices decodes ConvertTo-Json output, which is a bare object
// for a single result and an array otherwise.
func parsePnpDevices(out []byte) ([]pnpDevice, error) {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var single pnpDevice
		if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
			return nil, fmt.Errorf("parse device list: %w", err)
		}
		return []pnpDevice{single}, nil
	}

	var devices []pnpDevice
	if err := json.Unmarshal([]byte(trimmed), &devices); err != nil {
		return nil, fmt.Errorf("parse device list: %w", err)
	}
	return devices, nil
}

// addressFromInstanceID converts the hex run in a PnP instance id to a
// colon-separated MAC address, or "" when the id carries none.
func addressFromInstanceID(id string) string {
	m := instanceAddrPattern.FindStringSubmatch(strings.ToUpper(id))
	if m == nil {
		return ""
	}
	hex := m[1]
	parts := make([]string, 0, 6)
	for i := 0; i < len(hex); i += 2 {
		parts = append(parts, hex[i:i+2])
	}
	return strings.Join(parts, ":")
}

// Devices lists the paired Bluetooth devices Windows knows about. Entries
// whose instance id has no embedded MAC (service endpoints and the radio
// itself) are skipped.
func (s *PowerShellScanner) Devices(ctx context.Context) ([]Device, error) {
	out, err := s.run(ctx, listDevicesScript)
	if err != nil {
		return nil, err
	}

	entries, err := parsePnpDevices(out)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var devices []Device
	for _, e := range entries {
		address := addressFromInstanceID(e.InstanceId)
		if address == "" || seen[address] {
			continue
		}
		seen[address] = true
		name := strings.TrimSpace(e.FriendlyName)
		if name == "" {
			name = "Bluetooth Device"
		}
		devices = append(devices, Device{
			Address:   address,
			Name:      name,
			Connected: strings.EqualFold(e.Status, "OK"),
			Paired:    true,
		})
	}

	s.logger.Debug().Int("count", len(devices)).Msg("Enumerated PnP Bluetooth devices")
	return devices, nil
}

// Check reports whether the target device currently has an active PnP
// connection. A device missing from the PnP tree is absent, not an error.
func (s *PowerShellScanner) Check(ctx context.Context, address string) (Reading, error) {
	devices, err := s.Devices(ctx)
	if err != nil {
		return Reading{}, err
	}

	target := NormalizeAddress(address)
	for _, d := range devices {
		if d.Address == target {
			return Reading{Connected: d.Connected}, nil
		}
	}
	return Reading{}, nil
}

// Close is a no-op; each poll spawns its own process.
func (s *PowerShellScanner) Close() error {
	return nil
}
