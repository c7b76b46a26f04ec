package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/bluelock/agent/internal/models"
	"github.com/bluelock/agent/internal/utils"
	"github.com/bluelock/agent/pkg/mqtt"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/host"
)

// StatusSource supplies the current presence snapshot. Implemented by the
// MonitorService.
type StatusSource interface {
	Status() models.PresenceStatus
}

// PresenceService publishes presence transitions and periodic status
// snapshots over MQTT. Publishes run on a small worker pool so the
// sampling loop never blocks on the broker.
type PresenceService struct {
	PubTopic   string
	Interval   time.Duration
	QOS        int
	AgentID    string
	Source     StatusSource
	MqttClient mqtt.MQTTClient
	Logger     zerolog.Logger

	hostInfo func() (*host.InfoStat, error)
	pool     *utils.WorkerPool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPresenceService initializes a new PresenceService.
func NewPresenceService(pubTopic string, interval time.Duration, qos int, agentID string,
	source StatusSource, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *PresenceService {

	return &PresenceService{
		PubTopic:   pubTopic,
		Interval:   interval,
		QOS:        qos,
		AgentID:    agentID,
		Source:     source,
		MqttClient: mqttClient,
		Logger:     logger,
		hostInfo:   host.Info,
	}
}

// Start launches the status loop in a separate goroutine.
func (p *PresenceService) Start() error {
	if p.ctx != nil {
		p.Logger.Warn().Msg("PresenceService is already running")
		return errors.New("presence service is already running")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.pool = utils.NewWorkerPool(1, 8)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runStatusLoop()
	}()

	p.Logger.Info().Str("topic", p.PubTopic).Msg("PresenceService started successfully")
	return nil
}

// Stop gracefully stops the presence service and drains pending publishes.
func (p *PresenceService) Stop() error {
	if p.ctx == nil {
		p.Logger.Warn().Msg("PresenceService is not running")
		return errors.New("presence service is not running")
	}

	p.cancel()
	p.wg.Wait()
	p.pool.Shutdown()

	p.ctx = nil
	p.cancel = nil

	p.Logger.Info().Msg("PresenceService stopped successfully")
	return nil
}

// PublishTransition queues a transition event for publishing. Wired as
// the monitor's OnTransition hook; drops the event when the queue is full
// rather than delaying the next poll.
func (p *PresenceService) PublishTransition(event models.PresenceEvent) {
	if p.pool == nil {
		p.Logger.Warn().Str("state", event.State).Msg("PresenceService not running, dropping presence event")
		return
	}
	accepted := p.pool.TrySubmit(func() {
		payload, err := json.Marshal(event)
		if err != nil {
			p.Logger.Error().Err(err).Msg("Failed to serialize presence event")
			return
		}
		p.publish(payload)
	})
	if !accepted {
		p.Logger.Warn().Str("state", event.State).Msg("Publish queue full, dropping presence event")
	}
}

// runStatusLoop publishes periodic status snapshots at the configured
// interval.
func (p *PresenceService) runStatusLoop() {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status := p.Source.Status()
			status.AgentID = p.AgentID
			if info, err := p.hostInfo(); err == nil {
				status.Hostname = info.Hostname
				status.UptimeSeconds = info.Uptime
			} else {
				p.Logger.Warn().Err(err).Msg("Failed to collect host info")
			}

			payload, err := json.Marshal(status)
			if err != nil {
				p.Logger.Error().Err(err).Msg("Failed to serialize presence status")
				continue
			}
			p.publish(payload)

		case <-p.ctx.Done():
			p.Logger.Info().Msg("PresenceService stopping gracefully")
			return
		}
	}
}

func (p *PresenceService) publish(payload []byte) {
	token := p.MqttClient.Publish(p.PubTopic, byte(p.QOS), false, payload)
	token.Wait()

	if err := token.Error(); err != nil {
		p.Logger.Error().Err(err).Msg("Failed to publish presence message")
	} else {
		p.Logger.Debug().Msg("Presence message published successfully")
	}
}
