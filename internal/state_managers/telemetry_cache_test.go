package state_managers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homegrid/gateway-client/internal/models"
)

func tempCache(t *testing.T) *TelemetryCacheManager {
	t.Helper()
	return NewTelemetryCacheManager(filepath.Join(t.TempDir(), "telemetry_cache.json"), zerolog.Nop())
}

// TestTelemetryCache_SaveRestoreRoundtrip verifies that a saved snapshot comes
// back intact when within the maximum age.
func TestTelemetryCache_SaveRestoreRoundtrip(t *testing.T) {
	cm := tempCache(t)

	temp := 21.5
	snapshot := models.TelemetrySnapshot{
		GatewaySerial: "GW-1",
		Temperature:   &temp,
		Readings:      map[string]float64{"lux": 340},
		CapturedAt:    time.Now().Add(-30 * time.Second),
	}
	require.NoError(t, cm.Save("premises-1", snapshot))

	restored, err := cm.Restore("premises-1", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, "GW-1", restored.GatewaySerial)
	assert.Equal(t, 21.5, *restored.Temperature)
	assert.Equal(t, 340.0, restored.Readings["lux"])
}

// TestTelemetryCache_MissingEntry verifies that an unknown premises id returns
// no value and no error.
func TestTelemetryCache_MissingEntry(t *testing.T) {
	cm := tempCache(t)

	restored, err := cm.Restore("premises-unknown", time.Hour)

	require.NoError(t, err)
	assert.Nil(t, restored)
}

// TestTelemetryCache_ExpiredEntry verifies that an entry older than maxAge is
// treated identically to a missing one.
func TestTelemetryCache_ExpiredEntry(t *testing.T) {
	cm := tempCache(t)

	require.NoError(t, cm.Save("premises-1", models.TelemetrySnapshot{GatewaySerial: "GW-1", CapturedAt: time.Now()}))

	restored, err := cm.Restore("premises-1", 0)

	require.NoError(t, err)
	assert.Nil(t, restored)
}

// TestTelemetryCache_OverwritesPriorEntry verifies that saving twice keeps
// only the latest snapshot for the premises.
func TestTelemetryCache_OverwritesPriorEntry(t *testing.T) {
	cm := tempCache(t)

	require.NoError(t, cm.Save("premises-1", models.TelemetrySnapshot{GatewaySerial: "GW-1", CapturedAt: time.Now().Add(-time.Minute)}))
	require.NoError(t, cm.Save("premises-1", models.TelemetrySnapshot{GatewaySerial: "GW-2", CapturedAt: time.Now()}))

	restored, err := cm.Restore("premises-1", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, "GW-2", restored.GatewaySerial)
}

// TestTelemetryCache_KeyedByPremises verifies that entries for different
// premises do not collide.
func TestTelemetryCache_KeyedByPremises(t *testing.T) {
	cm := tempCache(t)

	require.NoError(t, cm.Save("premises-1", models.TelemetrySnapshot{GatewaySerial: "GW-1", CapturedAt: time.Now()}))
	require.NoError(t, cm.Save("premises-2", models.TelemetrySnapshot{GatewaySerial: "GW-2", CapturedAt: time.Now()}))

	restored, err := cm.Restore("premises-1", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, "GW-1", restored.GatewaySerial)
}

// TestTelemetryCache_CorruptFile verifies that an unreadable cache file is
// surfaced as an error rather than silently wiping state.
func TestTelemetryCache_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telemetry_cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	cm := NewTelemetryCacheManager(path, zerolog.Nop())
	_, err := cm.Restore("premises-1", time.Hour)

	assert.Error(t, err)
}
