package utils

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bluelock/agent/pkg/file"
	"github.com/stretchr/testify/assert"
)

const sampleConfig = `
scanner:
  backend: "powershell"

services:
  monitor:
    enabled: true
    interval: 5
    rssi_threshold: -65
    miss_count: 4
  presence:
    enabled: true
    topic: "bluelock/presence"
    qos: 1
`

// TestLoadConfig verifies YAML parsing and default filling.
func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	fileClient := file.NewFileService()
	assert.NoError(t, fileClient.WriteFile(path, sampleConfig))

	config, err := LoadConfig(path, fileClient)
	assert.NoError(t, err)

	assert.Equal(t, "powershell", config.Scanner.Backend)
	assert.Equal(t, time.Duration(5), config.Services.Monitor.Interval)
	assert.Equal(t, -65, config.Services.Monitor.RSSIThreshold)
	assert.Equal(t, 4, config.Services.Monitor.MissCount)

	// Defaults for unset values.
	assert.Equal(t, 1, config.Services.Monitor.HitCount)
	assert.Equal(t, "lock", config.Services.Monitor.AwayAction)
	assert.Equal(t, time.Duration(60), config.Services.Presence.Interval)
	assert.Equal(t, "info", config.Logging.Level)
}

// TestLoadConfig_MissingFile verifies the error path.
func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), file.NewFileService())
	assert.Error(t, err)
}

// TestWorkerPool_TrySubmit verifies the non-blocking submit path.
func TestWorkerPool_TrySubmit(t *testing.T) {
	pool := NewWorkerPool(1, 2)

	done := make(chan struct{})
	accepted := pool.TrySubmit(func() { close(done) })
	assert.True(t, accepted)

	<-done
	pool.Shutdown()
}
