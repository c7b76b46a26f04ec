package utils

import (
	"time"

	"github.com/bluelock/agent/pkg/file"
)

// Config represents the structure of the configuration file.
// Interval values are plain seconds in YAML and scaled by the registry.
type Config struct {
	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate (optional)
	} `yaml:"mqtt"`

	Settings struct {
		DeviceFile string `yaml:"device_file"` // Path to the saved device selection file
	} `yaml:"settings"`

	Scanner struct {
		Backend string `yaml:"backend"` // Bluetooth backend: bluez or powershell
		Adapter string `yaml:"adapter"` // BlueZ adapter name, e.g. hci0
	} `yaml:"scanner"`

	Services struct {
		Monitor struct {
			Enabled       bool          `yaml:"enabled"`        // Enable/disable the proximity monitor
			Interval      time.Duration `yaml:"interval"`       // Seconds between polls
			RSSIThreshold int           `yaml:"rssi_threshold"` // dBm floor below which a reading is a miss (0 disables)
			MissCount     int           `yaml:"miss_count"`     // Consecutive misses before the away action
			HitCount      int           `yaml:"hit_count"`      // Consecutive hits before the return action
			AwayAction    string        `yaml:"away_action"`    // lock, display_off or sleep
			StatsEvery    int           `yaml:"stats_every"`    // Scans between detection-rate log lines (0 disables)
		} `yaml:"monitor"`

		Presence struct {
			Enabled  bool          `yaml:"enabled"`  // Enable/disable MQTT presence publishing
			Topic    string        `yaml:"topic"`    // MQTT topic for presence messages
			QOS      int           `yaml:"qos"`      // MQTT QoS level for presence messages
			Interval time.Duration `yaml:"interval"` // Seconds between status snapshots
		} `yaml:"presence"`
	} `yaml:"services"`

	Logging struct {
		Level string `yaml:"level"` // zerolog level: debug, info, warn, error
	} `yaml:"logging"`
}

// LoadConfig loads the YAML configuration from the specified file and
// fills in defaults for unset monitor tuning values.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	err := fileClient.ReadYamlFile(filename, &config)
	if err != nil {
		return nil, err
	}

	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(c *Config) {
	m := &c.Services.Monitor
	if m.Interval <= 0 {
		m.Interval = 3
	}
	if m.MissCount <= 0 {
		m.MissCount = 2
	}
	if m.HitCount <= 0 {
		m.HitCount = 1
	}
	if m.AwayAction == "" {
		m.AwayAction = "lock"
	}

	p := &c.Services.Presence
	if p.Interval <= 0 {
		p.Interval = 60
	}

	if c.Scanner.Backend == "" {
		c.Scanner.Backend = "bluez"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
