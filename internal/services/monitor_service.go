package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bluelock/agent/internal/constants"
	"github.com/bluelock/agent/internal/models"
	"github.com/bluelock/agent/pkg/bluetooth"
	"github.com/bluelock/agent/pkg/settings"
	"github.com/bluelock/agent/pkg/sysaction"
	"github.com/rs/zerolog"
)

// MonitorService polls the Bluetooth scanner for the target device and
// debounces the readings before firing system actions.
//
// The state machine has two states, present and absent. Leaving requires
// MissCount consecutive misses; returning requires HitCount consecutive
// hits. Each transition fires its action exactly once, and polls that do
// not change state fire nothing.
type MonitorService struct {
	Target        settings.Selection
	Interval      time.Duration
	RSSIThreshold int
	MissCount     int
	HitCount      int
	StatsEvery    int
	Scanner       bluetooth.Scanner
	Actions       sysaction.Actions
	OnTransition  func(models.PresenceEvent)
	Logger        zerolog.Logger

	mu         sync.Mutex
	present    bool
	misses     int
	hits       int
	scans      uint64
	detections uint64
	lastRSSI   *int16

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitorService initializes a new MonitorService. The monitor starts
// in the present state so a device that stays in range from startup never
// triggers an action.
func NewMonitorService(target settings.Selection, interval time.Duration, rssiThreshold, missCount, hitCount, statsEvery int,
	scanner bluetooth.Scanner, actions sysaction.Actions, logger zerolog.Logger) *MonitorService {

	return &MonitorService{
		Target:        target,
		Interval:      interval,
		RSSIThreshold: rssiThreshold,
		MissCount:     missCount,
		HitCount:      hitCount,
		StatsEvery:    statsEvery,
		Scanner:       scanner,
		Actions:       actions,
		Logger:        logger,
		present:       true,
	}
}

// Start launches the monitor loop in a separate goroutine.
func (m *MonitorService) Start() error {
	if m.ctx != nil {
		m.Logger.Warn().Msg("MonitorService is already running")
		return errors.New("monitor service is already running")
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runMonitorLoop()
	}()

	m.Logger.Info().
		Str("device", m.Target.Address).
		Str("name", m.Target.Name).
		Dur("interval", m.Interval).
		Int("miss_count", m.MissCount).
		Msg("MonitorService started successfully")
	return nil
}

// Stop gracefully stops the monitor service.
func (m *MonitorService) Stop() error {
	if m.ctx == nil {
		m.Logger.Warn().Msg("MonitorService is not running")
		return errors.New("monitor service is not running")
	}

	m.cancel()
	m.wg.Wait()

	m.ctx = nil
	m.cancel = nil

	m.Logger.Info().Msg("MonitorService stopped successfully")
	return nil
}

// runMonitorLoop polls the scanner at the configured interval until the
// service is stopped.
func (m *MonitorService) runMonitorLoop() {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.poll(m.ctx)

		case <-m.ctx.Done():
			m.Logger.Info().Msg("MonitorService stopping gracefully")
			return
		}
	}
}

// poll performs one sample-decide-act cycle. Scan failures count as
// misses; the loop never aborts on a backend error.
func (m *MonitorService) poll(ctx context.Context) {
	reading, err := m.Scanner.Check(ctx, m.Target.Address)
	if err != nil {
		m.Logger.Warn().Err(err).Msg("Scan failed, counting as a miss")
	}

	hit := err == nil && m.isHit(reading)
	event, fire := m.applyReading(hit, reading)

	if fire {
		m.fireAction(ctx, event)
	}

	m.logPoll(hit, reading)
}

// isHit applies the signal threshold. A connected device with no RSSI
// reading is a hit; a known RSSI below the threshold is a miss even while
// connected.
func (m *MonitorService) isHit(reading bluetooth.Reading) bool {
	if !reading.Connected {
		return false
	}
	if m.RSSIThreshold != 0 && reading.RSSI != nil && int(*reading.RSSI) < m.RSSIThreshold {
		return false
	}
	return true
}

// applyReading advances the debounce counters and reports whether a state
// transition occurred.
func (m *MonitorService) applyReading(hit bool, reading bluetooth.Reading) (models.PresenceEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scans++
	transitioned := false

	if hit {
		m.misses = 0
		m.hits++
		m.detections++
		m.lastRSSI = reading.RSSI

		if !m.present && m.hits >= m.HitCount {
			m.present = true
			transitioned = true
		}
	} else {
		m.hits = 0
		m.misses++

		if m.present && m.misses >= m.MissCount {
			m.present = false
			transitioned = true
		}
	}

	if !transitioned {
		return models.PresenceEvent{}, false
	}

	state := constants.StateAbsent
	if m.present {
		state = constants.StatePresent
	}
	return models.PresenceEvent{
		DeviceAddress: m.Target.Address,
		DeviceName:    m.Target.Name,
		State:         state,
		RSSI:          reading.RSSI,
		Timestamp:     time.Now(),
	}, true
}

// fireAction runs the side effect for a transition and notifies the
// transition hook. Action failures are logged; the state change stands.
func (m *MonitorService) fireAction(ctx context.Context, event models.PresenceEvent) {
	var err error
	if event.State == constants.StateAbsent {
		m.Logger.Info().Str("device", m.Target.Address).Msg("Device out of range, executing away action")
		err = m.Actions.Away(ctx)
	} else {
		m.Logger.Info().Str("device", m.Target.Address).Msg("Device back in range, executing return action")
		err = m.Actions.Return(ctx)
	}
	if err != nil {
		m.Logger.Error().Err(err).Msg("Presence action failed")
	}

	if m.OnTransition != nil {
		m.OnTransition(event)
	}
}

// logPoll writes the per-poll status line and the periodic detection-rate
// summary.
func (m *MonitorService) logPoll(hit bool, reading bluetooth.Reading) {
	m.mu.Lock()
	scans, detections := m.scans, m.detections
	misses := m.misses
	m.mu.Unlock()

	line := m.Logger.Debug().Uint64("scan", scans).Bool("connected", reading.Connected)
	if reading.RSSI != nil {
		line = line.Int16("rssi", *reading.RSSI).Str("signal", SignalLabel(*reading.RSSI))
	}
	if hit {
		line.Msg("Device detected")
	} else {
		line.Int("consecutive_misses", misses).Msg("Device not detected")
	}

	if m.StatsEvery > 0 && scans%uint64(m.StatsEvery) == 0 {
		rate := float64(detections) / float64(scans) * 100
		m.Logger.Info().
			Uint64("scans", scans).
			Uint64("detections", detections).
			Float64("detection_rate_pct", rate).
			Msg("Monitor statistics")
	}
}

// Status returns a snapshot of the monitor state for status publishing.
func (m *MonitorService) Status() models.PresenceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := constants.StateAbsent
	if m.present {
		state = constants.StatePresent
	}
	return models.PresenceStatus{
		DeviceAddress:     m.Target.Address,
		DeviceName:        m.Target.Name,
		State:             state,
		RSSI:              m.lastRSSI,
		ConsecutiveMisses: m.misses,
		TotalScans:        m.scans,
		TotalDetections:   m.detections,
		Timestamp:         time.Now(),
	}
}

// SignalLabel buckets an RSSI value into the coarse proximity labels used
// in status output.
func SignalLabel(rssi int16) string {
	switch {
	case rssi >= -40:
		return "excellent"
	case rssi >= -55:
		return "strong"
	case rssi >= -70:
		return "good"
	case rssi >= -80:
		return "weak"
	default:
		return "very weak"
	}
}
