package models

import "encoding/json"

// Envelope is the uniform response wrapper returned by every backend REST
// endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// DeviceCommand is the request body for a device control command.
type DeviceCommand struct {
	DeviceID int64  `json:"device_id"`
	Action   string `json:"action"` // TURN_ON, TURN_OFF or TOGGLE.
}

// NewDevice is the request body for explicit device creation.
type NewDevice struct {
	Code   string `json:"code"`
	Pin    *int   `json:"gpio_pin,omitempty"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	RoomID int64  `json:"room_id,omitempty"`
}

// EnrollmentBeginResponse is the data payload returned by the begin-enrollment
// endpoint.
type EnrollmentBeginResponse struct {
	CorrelationID string `json:"correlation_id"`
}

// EnrollmentStatusResponse is the data payload of the on-demand enrollment
// status endpoint, mirroring the push event shape.
type EnrollmentStatusResponse struct {
	InProgress bool   `json:"in_progress"`
	Complete   bool   `json:"complete"`
	Success    bool   `json:"success"`
	Result     string `json:"result,omitempty"`
}
