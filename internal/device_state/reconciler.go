package device_state

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/homegrid/gateway-client/internal/constants"
	"github.com/homegrid/gateway-client/internal/models"
)

// Reconciler owns the authoritative in-memory device collection. It merges
// updates from three sources: full backend polls, optimistic local command
// application, and partial push deltas. Each apply is atomic per device
// record, so a poll and a delta racing on the same device converge to the most
// recently applied write with no half-merged fields.
type Reconciler struct {
	devices  cmap.ConcurrentMap[string, models.Device]
	resolver *Resolver
	logger   zerolog.Logger
}

// NewReconciler initializes a new Reconciler.
func NewReconciler(resolver *Resolver, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		devices:  cmap.New[models.Device](),
		resolver: resolver,
		logger:   logger,
	}
}

// ApplyFullPoll replaces the device collection from an authoritative backend
// read. Total replacement, not a merge: the poll reflects ground truth at one
// instant.
func (r *Reconciler) ApplyFullPoll(list []models.Device) {
	fresh := make(map[string]models.Device, len(list))
	for _, d := range list {
		fresh[deviceKey(d.ID)] = normalizeDevice(d)
	}

	for _, key := range r.devices.Keys() {
		if _, ok := fresh[key]; !ok {
			r.devices.Remove(key)
		}
	}
	for key, d := range fresh {
		r.devices.Set(key, d)
	}

	r.logger.Debug().Int("devices", len(list)).Msg("Applied full device poll")
}

// ApplyOptimisticCommand flips the local coarse status to the action's implied
// value before the backend confirms, keeping the view responsive. The next
// poll or push delta for the device overwrites it; a failed command is not
// rolled back here.
func (r *Reconciler) ApplyOptimisticCommand(deviceID int64, action string) error {
	key := deviceKey(deviceID)
	if !r.devices.Has(key) {
		return fmt.Errorf("unknown device id %d", deviceID)
	}

	r.devices.Upsert(key, models.Device{}, func(exists bool, current, _ models.Device) models.Device {
		if !exists {
			return current
		}
		switch action {
		case constants.ActionTurnOn:
			current.Status = constants.DeviceStatusOn
		case constants.ActionTurnOff:
			current.Status = constants.DeviceStatusOff
		case constants.ActionToggle:
			if current.Status == constants.DeviceStatusOn {
				current.Status = constants.DeviceStatusOff
			} else {
				current.Status = constants.DeviceStatusOn
			}
		}
		current.UpdatedAt = time.Now()
		return current
	})
	return nil
}

// ApplyPushDelta resolves the delta's identity and applies it as a partial
// update: absent fields leave the device untouched, and a structured state
// blob with a recognizable power value overrides any coarse status carried in
// the same delta. Returns false when no known device matches.
func (r *Reconciler) ApplyPushDelta(delta models.DeviceDelta) bool {
	deviceID, ok := r.resolver.Resolve(r.Devices(), delta)
	if !ok {
		return false
	}

	r.devices.Upsert(deviceKey(deviceID), models.Device{}, func(exists bool, current, _ models.Device) models.Device {
		if !exists {
			return current
		}
		if len(delta.State) > 0 {
			current.State = delta.State
		}
		if derived, ok := models.StatusFromState(delta.State); ok {
			current.Status = derived
		} else if delta.Status != "" {
			current.Status = models.NormalizeStatus(delta.Status)
		}
		current.UpdatedAt = time.Now()
		return current
	})
	return true
}

// UpsertDevice inserts or replaces one device record, used for explicit
// creation.
func (r *Reconciler) UpsertDevice(device models.Device) {
	r.devices.Set(deviceKey(device.ID), normalizeDevice(device))
}

// RemoveDevice drops one device record. Removal is only ever explicit.
func (r *Reconciler) RemoveDevice(deviceID int64) {
	r.devices.Remove(deviceKey(deviceID))
}

// Device returns one device record by id.
func (r *Reconciler) Device(deviceID int64) (models.Device, bool) {
	return r.devices.Get(deviceKey(deviceID))
}

// Devices returns a stable-ordered copy of the device collection.
func (r *Reconciler) Devices() []models.Device {
	items := r.devices.Items()
	list := make([]models.Device, 0, len(items))
	for _, d := range items {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// normalizeDevice derives the coarse status from the structured state blob
// when it carries a known power value. The blob is the higher-fidelity source
// of truth and overrides an independently supplied status on the same row.
func normalizeDevice(d models.Device) models.Device {
	if derived, ok := models.StatusFromState(d.State); ok {
		d.Status = derived
	} else {
		d.Status = models.NormalizeStatus(d.Status)
	}
	return d
}

func deviceKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
