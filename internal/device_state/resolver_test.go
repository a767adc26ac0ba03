package device_state

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/homegrid/gateway-client/internal/models"
)

func intPtr(v int) *int { return &v }

func testDevices() []models.Device {
	return []models.Device{
		{ID: 1, Code: "LED_A", Pin: intPtr(5)},
		{ID: 2, Code: "LED_B", Pin: intPtr(7)},
		{ID: 3, Code: "FAN_LOUNGE"},
	}
}

// TestResolver_PinOutranksCode verifies that a hardware pin match wins even
// when the code points at a different device.
func TestResolver_PinOutranksCode(t *testing.T) {
	r := NewResolver(true, zerolog.Nop())

	id, ok := r.Resolve(testDevices(), models.DeviceDelta{Pin: intPtr(5), Code: "LED_B"})

	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
}

// TestResolver_CaseInsensitiveExactCode verifies tier 2 matching when no pin
// is present.
func TestResolver_CaseInsensitiveExactCode(t *testing.T) {
	r := NewResolver(true, zerolog.Nop())

	id, ok := r.Resolve(testDevices(), models.DeviceDelta{Code: "led_a"})

	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
}

// TestResolver_SubstringMatch verifies the fallback tier in both directions.
func TestResolver_SubstringMatch(t *testing.T) {
	r := NewResolver(true, zerolog.Nop())

	// Inbound code is a superset of the known code.
	id, ok := r.Resolve(testDevices(), models.DeviceDelta{Code: "FAN_LOUNGE_01"})
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)

	// Inbound code is a prefix of the known code.
	id, ok = r.Resolve(testDevices(), models.DeviceDelta{Code: "fan_lounge"})
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)
}

// TestResolver_SubstringDisabled verifies the substring tier can be turned off.
func TestResolver_SubstringDisabled(t *testing.T) {
	r := NewResolver(false, zerolog.Nop())

	_, ok := r.Resolve(testDevices(), models.DeviceDelta{Code: "FAN_LOUNGE_01"})

	assert.False(t, ok)
}

// TestResolver_NoMatch verifies that an unresolvable delta is reported as not
// found rather than matched arbitrarily.
func TestResolver_NoMatch(t *testing.T) {
	r := NewResolver(true, zerolog.Nop())

	_, ok := r.Resolve(testDevices(), models.DeviceDelta{Pin: intPtr(99), Code: "DOOR_X"})

	assert.False(t, ok)
}

// TestResolver_EmptyDelta verifies that a delta with no identifiers never
// matches.
func TestResolver_EmptyDelta(t *testing.T) {
	r := NewResolver(true, zerolog.Nop())

	_, ok := r.Resolve(testDevices(), models.DeviceDelta{})

	assert.False(t, ok)
}
