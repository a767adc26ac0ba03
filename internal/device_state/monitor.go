package device_state

import (
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"

	"github.com/homegrid/gateway-client/internal/constants"
	"github.com/homegrid/gateway-client/internal/models"
)

// GatewayMonitor holds the gateway record, the current telemetry snapshot and
// the push-channel recency for one premises, and derives liveness and
// staleness from them on each read.
//
// Liveness folds three signals together: the backend's reported-online flag,
// the raw status enum, and recent push activity. Recent push traffic within
// the grace window outranks a reported-offline flag; the backend's own
// heartbeat check can race an actual live push, and trusting the push prevents
// the view from flapping between online and offline.
type GatewayMonitor struct {
	mu sync.RWMutex

	gateway          *models.Gateway
	snapshot         *models.TelemetrySnapshot
	snapshotRestored bool
	lastPush         *time.Time
	emergency        *models.EmergencyEvent

	graceWindow        time.Duration
	stalenessThreshold time.Duration
	minFirmware        *semver.Version

	logger zerolog.Logger
}

// NewGatewayMonitor initializes a new GatewayMonitor. minFirmware may be empty
// to disable the firmware check.
func NewGatewayMonitor(graceWindow, stalenessThreshold time.Duration, minFirmware string, logger zerolog.Logger) *GatewayMonitor {
	var minVersion *semver.Version
	if minFirmware != "" {
		v, err := semver.NewVersion(minFirmware)
		if err != nil {
			logger.Warn().Err(err).Str("min_firmware", minFirmware).Msg("Invalid minimum firmware version, check disabled")
		} else {
			minVersion = v
		}
	}

	return &GatewayMonitor{
		graceWindow:        graceWindow,
		stalenessThreshold: stalenessThreshold,
		minFirmware:        minVersion,
		logger:             logger,
	}
}

// SetGateway replaces the gateway record from an authoritative poll.
func (m *GatewayMonitor) SetGateway(gateway *models.Gateway) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gateway = gateway
}

// ClearGateway drops the gateway record after an explicit unpair. Unpairing is
// terminal; a later enrollment produces a new gateway identity.
func (m *GatewayMonitor) ClearGateway() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gateway = nil
	m.snapshot = nil
	m.snapshotRestored = false
}

// Gateway returns a copy of the current gateway record.
func (m *GatewayMonitor) Gateway() (models.Gateway, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.gateway == nil {
		return models.Gateway{}, false
	}
	return *m.gateway, true
}

// MarkPushActivity records push-channel traffic for the premises. Every
// inbound push message counts, regardless of topic.
func (m *GatewayMonitor) MarkPushActivity(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastPush == nil || at.After(*m.lastPush) {
		m.lastPush = &at
	}
}

// LastPushRecency returns the timestamp of the most recent push activity, or
// nil when none has ever been observed.
func (m *GatewayMonitor) LastPushRecency() *time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastPush == nil {
		return nil
	}
	t := *m.lastPush
	return &t
}

// ApplyGatewayStatusEvent folds a gateway-status push into the record.
func (m *GatewayMonitor) ApplyGatewayStatusEvent(event models.GatewayStatusEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gateway == nil {
		return
	}
	online := strings.EqualFold(event.Status, "online")
	m.gateway.ReportedOnline = online
	if online {
		at := event.Timestamp
		if at.IsZero() {
			at = time.Now()
		}
		m.gateway.LastHeartbeat = &at
		m.gateway.Status = constants.GatewayStatusOnline
	} else {
		m.gateway.Status = constants.GatewayStatusOffline
	}
}

// SetSnapshot installs a telemetry snapshot. restored marks data resurrected
// from the persisted cache, which stays flagged stale until live data arrives.
func (m *GatewayMonitor) SetSnapshot(snapshot *models.TelemetrySnapshot, restored bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = snapshot
	m.snapshotRestored = restored
}

// Snapshot returns the current telemetry snapshot together with its staleness
// flag. Staleness is independent of liveness: a snapshot can be stale while
// the gateway is nominally online.
func (m *GatewayMonitor) Snapshot(now time.Time) (*models.TelemetrySnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot == nil {
		return nil, false
	}
	stale := m.snapshotRestored || m.snapshot.IsStale(now, m.stalenessThreshold)
	return m.snapshot, stale
}

// Liveness computes the gateway's perceived liveness, fresh on each read.
func (m *GatewayMonitor) Liveness(now time.Time) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.gateway == nil {
		return constants.LivenessUnpaired
	}
	if m.gateway.Status == constants.GatewayStatusPairing {
		return constants.LivenessPairing
	}
	if m.gateway.ReportedOnline {
		return constants.LivenessOnline
	}
	if m.lastPush != nil && now.Sub(*m.lastPush) <= m.graceWindow {
		return constants.LivenessOnline
	}
	return constants.LivenessOffline
}

// ControlsEnabled reports whether device commands may be issued. Only a live,
// fully paired gateway accepts control.
func (m *GatewayMonitor) ControlsEnabled(now time.Time) bool {
	return m.Liveness(now) == constants.LivenessOnline
}

// FirmwareOutdated reports whether the gateway runs firmware older than the
// configured minimum. Unknown or unparseable versions are not flagged.
func (m *GatewayMonitor) FirmwareOutdated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.minFirmware == nil || m.gateway == nil || m.gateway.FirmwareVersion == "" {
		return false
	}
	current, err := semver.NewVersion(m.gateway.FirmwareVersion)
	if err != nil {
		return false
	}
	return current.LessThan(m.minFirmware)
}

// SetEmergency records the premises emergency state from the push channel.
func (m *GatewayMonitor) SetEmergency(event models.EmergencyEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.Active {
		e := event
		m.emergency = &e
	} else {
		m.emergency = nil
	}
}

// Emergency returns the active emergency, if any.
func (m *GatewayMonitor) Emergency() (models.EmergencyEvent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.emergency == nil {
		return models.EmergencyEvent{}, false
	}
	return *m.emergency, true
}
