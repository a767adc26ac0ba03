package constants

// Coarse device statuses
const (
	// DeviceStatusOn indicates the device is powered on
	DeviceStatusOn = "ON"
	// DeviceStatusOff indicates the device is powered off
	DeviceStatusOff = "OFF"
	// DeviceStatusUnknown indicates the device state has not been observed yet
	DeviceStatusUnknown = "UNKNOWN"
)

// Gateway statuses as reported by the backend
const (
	GatewayStatusPairing = "PAIRING"
	GatewayStatusOnline  = "ONLINE"
	GatewayStatusOffline = "OFFLINE"
	GatewayStatusError   = "ERROR"
)

// Derived gateway liveness. Distinct from the raw backend status: it folds in
// heartbeat age and push-channel recency.
const (
	LivenessUnpaired = "unpaired"
	LivenessPairing  = "pairing"
	LivenessOnline   = "online"
	LivenessOffline  = "offline"
)

// Enrollment session states
const (
	EnrollmentIdle             = "idle"
	EnrollmentAwaitingHardware = "awaiting_hardware"
	EnrollmentSuccess          = "success"
	EnrollmentFailure          = "failure"
	EnrollmentTimedOut         = "timed_out"
)

// Device command actions
const (
	ActionTurnOn  = "TURN_ON"
	ActionTurnOff = "TURN_OFF"
	ActionToggle  = "TOGGLE"
)

// StateKeyPower is the key inside a device's structured state blob whose value,
// when present and recognized, overrides the coarse status field.
const StateKeyPower = "power"
