package constants

import "fmt"

// Push topic path segments. Each topic is parameterized by the premises id.
const (
	topicDeviceStatus          = "premises/%s/device-status"
	topicGatewayStatus         = "premises/%s/gateway-status"
	topicTelemetry             = "premises/%s/telemetry"
	topicEnrollmentStatus      = "premises/%s/enrollment-status"
	topicCredentialListChanged = "premises/%s/credentials-changed"
	topicEmergency             = "premises/%s/emergency"
)

func DeviceStatusTopic(premisesID string) string {
	return fmt.Sprintf(topicDeviceStatus, premisesID)
}

func GatewayStatusTopic(premisesID string) string {
	return fmt.Sprintf(topicGatewayStatus, premisesID)
}

func TelemetryTopic(premisesID string) string {
	return fmt.Sprintf(topicTelemetry, premisesID)
}

func EnrollmentStatusTopic(premisesID string) string {
	return fmt.Sprintf(topicEnrollmentStatus, premisesID)
}

func CredentialListChangedTopic(premisesID string) string {
	return fmt.Sprintf(topicCredentialListChanged, premisesID)
}

func EmergencyTopic(premisesID string) string {
	return fmt.Sprintf(topicEmergency, premisesID)
}
