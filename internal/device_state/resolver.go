package device_state

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/homegrid/gateway-client/internal/models"
)

// Resolver maps an inbound device delta to exactly one locally known device.
//
// Matching runs in strict priority order: hardware pin, then case-insensitive
// exact code, then case-insensitive substring in either direction. The
// substring tier trades precision for availability (backend codes are not
// always prefix-disjoint) and can be disabled via configuration.
type Resolver struct {
	allowSubstringMatch bool
	logger              zerolog.Logger
}

// NewResolver initializes a new Resolver.
func NewResolver(allowSubstringMatch bool, logger zerolog.Logger) *Resolver {
	return &Resolver{
		allowSubstringMatch: allowSubstringMatch,
		logger:              logger,
	}
}

// Resolve returns the id of the device the delta refers to. The boolean is
// false when no device matches; that is expected during initial load races and
// is not an error.
func (r *Resolver) Resolve(devices []models.Device, delta models.DeviceDelta) (int64, bool) {
	// Tier 1: hardware pin. Authoritative, outranks any code similarity.
	if delta.Pin != nil {
		for _, d := range devices {
			if d.Pin != nil && *d.Pin == *delta.Pin {
				return d.ID, true
			}
		}
	}

	if delta.Code == "" {
		return 0, false
	}

	// Tier 2: case-insensitive exact code match.
	for _, d := range devices {
		if strings.EqualFold(d.Code, delta.Code) {
			return d.ID, true
		}
	}

	// Tier 3: case-insensitive substring in either direction, for backends
	// that send a superset or prefix of the configured code.
	if r.allowSubstringMatch {
		inbound := strings.ToLower(delta.Code)
		for _, d := range devices {
			known := strings.ToLower(d.Code)
			if known == "" {
				continue
			}
			if strings.Contains(known, inbound) || strings.Contains(inbound, known) {
				return d.ID, true
			}
		}
	}

	r.logger.Debug().Str("code", delta.Code).Msg("Push delta does not match any known device, dropping")
	return 0, false
}
