package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/homegrid/gateway-client/internal/device_state"
	"github.com/homegrid/gateway-client/internal/models"
)

// CommandAPI covers the backend command endpoints.
type CommandAPI interface {
	SendDeviceCommand(ctx context.Context, deviceID int64, action string) error
	CreateDevice(ctx context.Context, device models.NewDevice) (*models.Device, error)
	RemoveDevice(ctx context.Context, deviceID int64) error
	UnpairGateway(ctx context.Context) error
}

// GatewayIdentityStore persists the paired gateway serial across restarts. An
// empty serial records an unpaired premises.
type GatewayIdentityStore interface {
	GetGatewaySerial() string
	SaveGatewaySerial(serial string) error
}

// ErrGatewayNotOnline is returned when a control command is issued while the
// gateway's derived liveness is anything but online.
var ErrGatewayNotOnline = errors.New("gateway is not online")

// CommandService is the imperative surface exposed to the UI layer: device
// control, explicit device lifecycle and gateway unpairing.
//
// Commands apply an optimistic local status flip before the backend confirms.
// A failed command surfaces its error but the optimistic value is deliberately
// not rolled back; the next poll or push delta corrects it.
type CommandService struct {
	Backend    CommandAPI
	Reconciler *device_state.Reconciler
	Monitor    *device_state.GatewayMonitor
	Identity   GatewayIdentityStore
	Logger     zerolog.Logger
}

// NewCommandService initializes a new CommandService. identity may be nil when
// no persisted premises identity exists.
func NewCommandService(backendClient CommandAPI, reconciler *device_state.Reconciler,
	monitor *device_state.GatewayMonitor, identity GatewayIdentityStore, logger zerolog.Logger) *CommandService {

	return &CommandService{
		Backend:    backendClient,
		Reconciler: reconciler,
		Monitor:    monitor,
		Identity:   identity,
		Logger:     logger,
	}
}

// IssueCommand sends a control action for one device, flipping the local
// status immediately for responsiveness.
func (c *CommandService) IssueCommand(ctx context.Context, deviceID int64, action string) error {
	if !c.Monitor.ControlsEnabled(time.Now()) {
		return ErrGatewayNotOnline
	}

	if err := c.Reconciler.ApplyOptimisticCommand(deviceID, action); err != nil {
		return err
	}

	if err := c.Backend.SendDeviceCommand(ctx, deviceID, action); err != nil {
		c.Logger.Warn().Err(err).Int64("device_id", deviceID).Str("action", action).
			Msg("Device command rejected, next poll will correct the optimistic state")
		return err
	}

	c.Logger.Debug().Int64("device_id", deviceID).Str("action", action).Msg("Device command accepted")
	return nil
}

// CreateDevice registers a new device and adds it to the local collection.
func (c *CommandService) CreateDevice(ctx context.Context, device models.NewDevice) (*models.Device, error) {
	created, err := c.Backend.CreateDevice(ctx, device)
	if err != nil {
		return nil, err
	}
	c.Reconciler.UpsertDevice(*created)
	return created, nil
}

// RemoveDevice deletes a device on the backend and from the local collection.
// This is the only path that removes a device; polls and deltas never do.
func (c *CommandService) RemoveDevice(ctx context.Context, deviceID int64) error {
	if err := c.Backend.RemoveDevice(ctx, deviceID); err != nil {
		return err
	}
	c.Reconciler.RemoveDevice(deviceID)
	return nil
}

// UnpairGateway detaches the gateway. The local view transitions to unpaired
// immediately; the operation is irreversible from the client's perspective.
func (c *CommandService) UnpairGateway(ctx context.Context) error {
	if err := c.Backend.UnpairGateway(ctx); err != nil {
		return err
	}
	c.Monitor.ClearGateway()
	if c.Identity != nil {
		if err := c.Identity.SaveGatewaySerial(""); err != nil {
			c.Logger.Warn().Err(err).Msg("Failed to clear persisted gateway serial")
		}
	}
	c.Logger.Info().Msg("Gateway unpaired")
	return nil
}
