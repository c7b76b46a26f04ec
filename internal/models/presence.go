package models

import "time"

// PresenceEvent describes a single presence state transition of the
// monitored device.
type PresenceEvent struct {
	DeviceAddress string    `json:"device_address"`
	DeviceName    string    `json:"device_name,omitempty"`
	State         string    `json:"state"`
	RSSI          *int16    `json:"rssi,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// PresenceStatus is the periodic status snapshot published between
// transitions.
type PresenceStatus struct {
	AgentID           string    `json:"agent_id,omitempty"`
	Hostname          string    `json:"hostname,omitempty"`
	UptimeSeconds     uint64    `json:"uptime_seconds,omitempty"`
	DeviceAddress     string    `json:"device_address"`
	DeviceName        string    `json:"device_name,omitempty"`
	State             string    `json:"state"`
	RSSI              *int16    `json:"rssi,omitempty"`
	ConsecutiveMisses int       `json:"consecutive_misses"`
	TotalScans        uint64    `json:"total_scans"`
	TotalDetections   uint64    `json:"total_detections"`
	Timestamp         time.Time `json:"timestamp"`
}
