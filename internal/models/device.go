package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/homegrid/gateway-client/internal/constants"
)

// Device represents one remote embedded device attached to the gateway.
type Device struct {
	ID        int64           `json:"id"`                  // Authoritative key assigned by the backend.
	Code      string          `json:"code"`                // Human-readable code, may be prefix-ambiguous.
	Pin       *int            `json:"gpio_pin,omitempty"`  // Hardware pin number, unambiguous when present.
	Name      string          `json:"name"`
	Type      string          `json:"type"`                // LIGHT, FAN, DOOR, LOCK, SENSOR, SWITCH.
	Status    string          `json:"status"`              // Coarse ON/OFF/UNKNOWN.
	State     json.RawMessage `json:"state_value,omitempty"` // Structured state blob, e.g. {"power":"ON"}.
	RoomID    int64           `json:"room_id,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DeviceDelta is a partial device update pushed over the message channel.
// Absent fields leave the corresponding device fields untouched.
type DeviceDelta struct {
	Pin    *int            `json:"gpioPin,omitempty"`
	Code   string          `json:"code,omitempty"`
	Status string          `json:"status,omitempty"`
	State  json.RawMessage `json:"state,omitempty"`
}

// StatusFromState parses a structured state blob and maps its power value onto
// a coarse status. Returns ("", false) when the blob carries no recognizable
// power value.
func StatusFromState(state json.RawMessage) (string, bool) {
	if len(state) == 0 {
		return "", false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(state, &fields); err != nil {
		return "", false
	}

	raw, ok := fields[constants.StateKeyPower]
	if !ok {
		return "", false
	}

	var power string
	if err := json.Unmarshal(raw, &power); err != nil {
		return "", false
	}

	switch strings.ToUpper(power) {
	case constants.DeviceStatusOn:
		return constants.DeviceStatusOn, true
	case constants.DeviceStatusOff:
		return constants.DeviceStatusOff, true
	}
	return "", false
}

// NormalizeStatus maps loosely formatted status strings ("on", "Off") onto the
// coarse status constants, defaulting to UNKNOWN.
func NormalizeStatus(status string) string {
	switch strings.ToUpper(status) {
	case constants.DeviceStatusOn:
		return constants.DeviceStatusOn
	case constants.DeviceStatusOff:
		return constants.DeviceStatusOff
	}
	return constants.DeviceStatusUnknown
}
