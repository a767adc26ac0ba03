package models

import "time"

// TelemetrySnapshot is a timestamped bundle of sensor readings for one
// gateway. CapturedAt is the capture time reported by the gateway, independent
// of when the client read or restored the snapshot.
type TelemetrySnapshot struct {
	GatewaySerial string             `json:"gateway_serial"`
	Temperature   *float64           `json:"temperature,omitempty"`
	Humidity      *float64           `json:"humidity,omitempty"`
	PowerDraw     *float64           `json:"power_draw,omitempty"`
	Readings      map[string]float64 `json:"readings,omitempty"`
	CapturedAt    time.Time          `json:"captured_at"`
}

// IsStale reports whether the snapshot is older than the given threshold.
// Staleness is a property of the data's age only; it says nothing about
// gateway liveness.
func (s *TelemetrySnapshot) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(s.CapturedAt) > threshold
}

// GatewaySnapshot is the full-state read returned by the backend for one
// premises: the gateway record plus its most recent telemetry.
type GatewaySnapshot struct {
	Gateway   *Gateway           `json:"gateway,omitempty"`
	Telemetry *TelemetrySnapshot `json:"telemetry,omitempty"`
}
