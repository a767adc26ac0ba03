package state_managers

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/homegrid/gateway-client/internal/models"
)

// CachedSnapshot is one persisted last-known-good telemetry snapshot together
// with the time it was cached. CapturedAt inside the snapshot is the gateway's
// capture time; CachedAt bounds how long the entry may be resurrected.
type CachedSnapshot struct {
	Snapshot models.TelemetrySnapshot `json:"snapshot"`
	CachedAt time.Time                `json:"cached_at"`
}

// TelemetryCacheManager handles file-based persistence of the last full
// telemetry snapshot per premises, so the view can show last-known state
// immediately on load instead of a blank screen.
type TelemetryCacheManager struct {
	filePath string
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewTelemetryCacheManager initializes a new TelemetryCacheManager.
func NewTelemetryCacheManager(filePath string, logger zerolog.Logger) *TelemetryCacheManager {
	return &TelemetryCacheManager{
		filePath: filePath,
		logger:   logger,
	}
}

// Save writes the snapshot for the premises, overwriting any prior entry.
func (cm *TelemetryCacheManager) Save(premisesID string, snapshot models.TelemetrySnapshot) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	entries, err := cm.loadLocked()
	if err != nil {
		return err
	}

	entries[premisesID] = CachedSnapshot{
		Snapshot: snapshot,
		CachedAt: time.Now(),
	}
	return cm.saveLocked(entries)
}

// Restore returns the cached snapshot for the premises if it is no older than
// maxAge. An expired or missing entry returns (nil, nil): both are treated
// identically as "no cached value". Callers must flag restored data stale
// until superseded by a live poll or push.
func (cm *TelemetryCacheManager) Restore(premisesID string, maxAge time.Duration) (*models.TelemetrySnapshot, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	entries, err := cm.loadLocked()
	if err != nil {
		return nil, err
	}

	entry, ok := entries[premisesID]
	if !ok {
		return nil, nil
	}
	if time.Since(entry.CachedAt) > maxAge {
		cm.logger.Debug().Str("premises_id", premisesID).Msg("Cached snapshot too old to restore")
		return nil, nil
	}

	snapshot := entry.Snapshot
	return &snapshot, nil
}

// loadLocked reads the cache file. A missing file yields an empty map.
func (cm *TelemetryCacheManager) loadLocked() (map[string]CachedSnapshot, error) {
	data, err := os.ReadFile(cm.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]CachedSnapshot), nil
		}
		cm.logger.Error().Err(err).Msg("Failed to read telemetry cache file")
		return nil, err
	}

	var entries map[string]CachedSnapshot
	if err := json.Unmarshal(data, &entries); err != nil {
		cm.logger.Error().Err(err).Msg("Failed to unmarshal telemetry cache file")
		return nil, err
	}
	return entries, nil
}

// saveLocked writes the cache file.
func (cm *TelemetryCacheManager) saveLocked(entries map[string]CachedSnapshot) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		cm.logger.Error().Err(err).Msg("Failed to marshal telemetry cache")
		return err
	}

	if err := os.WriteFile(cm.filePath, data, 0644); err != nil {
		cm.logger.Error().Err(err).Msg("Failed to write telemetry cache file")
		return err
	}
	return nil
}
