package models

import "time"

// Gateway represents the single intermediary hardware unit for a premises.
type Gateway struct {
	Serial          string     `json:"serial"`
	Status          string     `json:"status"` // PAIRING, ONLINE, OFFLINE, ERROR.
	ReportedOnline  bool       `json:"reported_online"`
	LastHeartbeat   *time.Time `json:"last_heartbeat,omitempty"`
	FirmwareVersion string     `json:"firmware_version,omitempty"`
}

// GatewayStatusEvent is the payload of the gateway-status push topic.
type GatewayStatusEvent struct {
	Status    string    `json:"status"` // "online" or "offline" literal.
	Timestamp time.Time `json:"timestamp"`
}

// EmergencyEvent is the payload of the emergency push topic.
type EmergencyEvent struct {
	Active bool   `json:"active"`
	Type   string `json:"type"` // e.g. "fire", "intrusion".
}
