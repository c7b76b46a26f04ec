package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bluelock/agent/internal/constants"
	"github.com/bluelock/agent/internal/models"
	"github.com/bluelock/agent/pkg/bluetooth"
	"github.com/bluelock/agent/pkg/settings"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockScanner struct {
	mock.Mock
}

func (m *mockScanner) Check(ctx context.Context, address string) (bluetooth.Reading, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(bluetooth.Reading), args.Error(1)
}

func (m *mockScanner) Devices(ctx context.Context) ([]bluetooth.Device, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]bluetooth.Device), args.Error(1)
}

func (m *mockScanner) Close() error {
	return m.Called().Error(0)
}

type mockActions struct {
	mock.Mock
}

func (m *mockActions) Away(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockActions) Return(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func rssiPtr(v int16) *int16 {
	return &v
}

func newTestMonitor(scanner *mockScanner, actions *mockActions, rssiThreshold, missCount, hitCount int) *MonitorService {
	return NewMonitorService(
		settings.Selection{Address: "AA:BB:CC:DD:EE:FF", Name: "Test Buds"},
		time.Hour, // polls are driven directly in tests
		rssiThreshold,
		missCount,
		hitCount,
		0,
		scanner,
		actions,
		zerolog.Nop(),
	)
}

// TestMonitorService_AwayFiresOnceAfterConsecutiveMisses verifies that the
// away action fires exactly once after the configured number of misses.
func TestMonitorService_AwayFiresOnceAfterConsecutiveMisses(t *testing.T) {
	scanner := new(mockScanner)
	actions := new(mockActions)

	scanner.On("Check", mock.Anything, "AA:BB:CC:DD:EE:FF").
		Return(bluetooth.Reading{Connected: false}, nil)
	actions.On("Away", mock.Anything).Return(nil)

	m := newTestMonitor(scanner, actions, 0, 3, 1)

	// Two misses: still present, no action.
	m.poll(context.Background())
	m.poll(context.Background())
	actions.AssertNotCalled(t, "Away", mock.Anything)

	// Third miss crosses the threshold.
	m.poll(context.Background())
	actions.AssertNumberOfCalls(t, "Away", 1)

	// Further misses change nothing.
	m.poll(context.Background())
	m.poll(context.Background())
	actions.AssertNumberOfCalls(t, "Away", 1)
	actions.AssertNotCalled(t, "Return", mock.Anything)
}

// TestMonitorService_ReturnFiresOnSingleHit verifies that a single hit
// after locking fires exactly one return action.
func TestMonitorService_ReturnFiresOnSingleHit(t *testing.T) {
	scanner := new(mockScanner)
	actions := new(mockActions)

	scanner.On("Check", mock.Anything, mock.Anything).
		Return(bluetooth.Reading{Connected: false}, nil).Twice()
	scanner.On("Check", mock.Anything, mock.Anything).
		Return(bluetooth.Reading{Connected: true}, nil)
	actions.On("Away", mock.Anything).Return(nil)
	actions.On("Return", mock.Anything).Return(nil)

	m := newTestMonitor(scanner, actions, 0, 2, 1)

	// Drive to absent.
	m.poll(context.Background())
	m.poll(context.Background())
	actions.AssertNumberOfCalls(t, "Away", 1)

	// Single hit brings it back.
	m.poll(context.Background())
	actions.AssertNumberOfCalls(t, "Return", 1)

	// Steady present state stays quiet.
	m.poll(context.Background())
	actions.AssertNumberOfCalls(t, "Return", 1)
}

// TestMonitorService_NoActionWhileStateUnchanged verifies that stable
// readings never trigger an action.
func TestMonitorService_NoActionWhileStateUnchanged(t *testing.T) {
	scanner := new(mockScanner)
	actions := new(mockActions)

	scanner.On("Check", mock.Anything, mock.Anything).
		Return(bluetooth.Reading{Connected: true, RSSI: rssiPtr(-50)}, nil)

	m := newTestMonitor(scanner, actions, -70, 2, 1)

	for i := 0; i < 5; i++ {
		m.poll(context.Background())
	}

	actions.AssertNotCalled(t, "Away", mock.Anything)
	actions.AssertNotCalled(t, "Return", mock.Anything)
}

// TestMonitorService_ScanErrorCountsAsMiss verifies that backend failures
// are absorbed as misses instead of aborting the loop.
func TestMonitorService_ScanErrorCountsAsMiss(t *testing.T) {
	scanner := new(mockScanner)
	actions := new(mockActions)

	scanner.On("Check", mock.Anything, mock.Anything).
		Return(bluetooth.Reading{}, errors.New("bus unavailable"))
	actions.On("Away", mock.Anything).Return(nil)

	m := newTestMonitor(scanner, actions, 0, 2, 1)

	m.poll(context.Background())
	m.poll(context.Background())

	actions.AssertNumberOfCalls(t, "Away", 1)
}

// TestMonitorService_WeakSignalCountsAsMiss verifies that a connected
// device below the RSSI threshold is treated as out of range.
func TestMonitorService_WeakSignalCountsAsMiss(t *testing.T) {
	scanner := new(mockScanner)
	actions := new(mockActions)

	scanner.On("Check", mock.Anything, mock.Anything).
		Return(bluetooth.Reading{Connected: true, RSSI: rssiPtr(-85)}, nil)
	actions.On("Away", mock.Anything).Return(nil)

	m := newTestMonitor(scanner, actions, -70, 2, 1)

	m.poll(context.Background())
	m.poll(context.Background())

	actions.AssertNumberOfCalls(t, "Away", 1)
}

// TestMonitorService_TransitionHook verifies the transition events handed
// to the OnTransition hook.
func TestMonitorService_TransitionHook(t *testing.T) {
	scanner := new(mockScanner)
	actions := new(mockActions)

	scanner.On("Check", mock.Anything, mock.Anything).
		Return(bluetooth.Reading{Connected: false}, nil).Once()
	scanner.On("Check", mock.Anything, mock.Anything).
		Return(bluetooth.Reading{Connected: true, RSSI: rssiPtr(-48)}, nil)
	actions.On("Away", mock.Anything).Return(nil)
	actions.On("Return", mock.Anything).Return(nil)

	m := newTestMonitor(scanner, actions, 0, 1, 1)

	var events []models.PresenceEvent
	m.OnTransition = func(e models.PresenceEvent) {
		events = append(events, e)
	}

	m.poll(context.Background())
	m.poll(context.Background())

	assert.Len(t, events, 2)
	assert.Equal(t, constants.StateAbsent, events[0].State)
	assert.Equal(t, constants.StatePresent, events[1].State)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", events[0].DeviceAddress)
	assert.NotNil(t, events[1].RSSI)
	assert.EqualValues(t, -48, *events[1].RSSI)
}

// TestMonitorService_Status verifies the snapshot exposed to the presence
// publisher.
func TestMonitorService_Status(t *testing.T) {
	scanner := new(mockScanner)
	actions := new(mockActions)

	scanner.On("Check", mock.Anything, mock.Anything).
		Return(bluetooth.Reading{Connected: true, RSSI: rssiPtr(-52)}, nil)

	m := newTestMonitor(scanner, actions, 0, 2, 1)
	m.poll(context.Background())

	status := m.Status()
	assert.Equal(t, constants.StatePresent, status.State)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", status.DeviceAddress)
	assert.EqualValues(t, 1, status.TotalScans)
	assert.EqualValues(t, 1, status.TotalDetections)
	assert.NotNil(t, status.RSSI)
}

// TestMonitorService_Start_Success tests the successful start of the
// MonitorService.
func TestMonitorService_Start_Success(t *testing.T) {
	scanner := new(mockScanner)
	actions := new(mockActions)

	m := newTestMonitor(scanner, actions, 0, 2, 1)

	err := m.Start()
	assert.NoError(t, err)

	// Try to start again (should fail)
	err = m.Start()
	assert.Error(t, err)
	assert.Equal(t, "monitor service is already running", err.Error())

	err = m.Stop()
	assert.NoError(t, err)
}

// TestMonitorService_Stop_Success tests the successful stop of the
// MonitorService.
func TestMonitorService_Stop_Success(t *testing.T) {
	scanner := new(mockScanner)
	actions := new(mockActions)

	m := newTestMonitor(scanner, actions, 0, 2, 1)

	err := m.Start()
	assert.NoError(t, err)

	err = m.Stop()
	assert.NoError(t, err)

	// Try to stop again (should fail)
	err = m.Stop()
	assert.Error(t, err)
	assert.Equal(t, "monitor service is not running", err.Error())
}

// TestSignalLabel verifies the RSSI bucket labels.
func TestSignalLabel(t *testing.T) {
	assert.Equal(t, "excellent", SignalLabel(-30))
	assert.Equal(t, "strong", SignalLabel(-50))
	assert.Equal(t, "good", SignalLabel(-65))
	assert.Equal(t, "weak", SignalLabel(-75))
	assert.Equal(t, "very weak", SignalLabel(-90))
}
