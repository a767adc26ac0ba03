package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/homegrid/gateway-client/internal/device_state"
	"github.com/homegrid/gateway-client/internal/models"
	"github.com/homegrid/gateway-client/internal/state_managers"
)

// FullStateSource reads the authoritative device and gateway state from the
// backend.
type FullStateSource interface {
	FetchDevices(ctx context.Context) ([]models.Device, error)
	FetchGatewaySnapshot(ctx context.Context) (*models.GatewaySnapshot, error)
}

// PollingService is the fallback that guarantees eventual consistency when the
// push channel degrades. It ticks at a fixed interval but only issues a full
// poll when the push channel has been silent longer than the configured
// threshold, so a healthy push channel suppresses almost all polling.
type PollingService struct {
	PremisesID       string
	Interval         time.Duration
	SilenceThreshold time.Duration
	Backend          FullStateSource
	Reconciler       *device_state.Reconciler
	Monitor          *device_state.GatewayMonitor
	Cache            *state_managers.TelemetryCacheManager
	Identity         GatewayIdentityStore
	Logger           zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPollingService initializes a new PollingService. identity may be nil when
// no persisted premises identity exists.
func NewPollingService(premisesID string, interval, silenceThreshold time.Duration, backendClient FullStateSource,
	reconciler *device_state.Reconciler, monitor *device_state.GatewayMonitor,
	cache *state_managers.TelemetryCacheManager, identity GatewayIdentityStore, logger zerolog.Logger) *PollingService {

	return &PollingService{
		PremisesID:       premisesID,
		Interval:         interval,
		SilenceThreshold: silenceThreshold,
		Backend:          backendClient,
		Reconciler:       reconciler,
		Monitor:          monitor,
		Cache:            cache,
		Identity:         identity,
		Logger:           logger,
	}
}

// Start launches the polling loop in a separate goroutine. The first poll runs
// immediately so the view is populated without waiting a full interval.
func (p *PollingService) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil {
		p.Logger.Warn().Msg("PollingService is already running")
		return errors.New("polling service is already running")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runPollingLoop()
	}()

	p.Logger.Info().Dur("interval", p.Interval).Msg("PollingService started successfully")
	return nil
}

// Stop gracefully stops the polling service.
func (p *PollingService) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil {
		p.Logger.Warn().Msg("PollingService is not running")
		return errors.New("polling service is not running")
	}

	p.cancel()
	p.wg.Wait()

	p.ctx = nil
	p.cancel = nil

	p.Logger.Info().Msg("PollingService stopped successfully")
	return nil
}

// ForceRefresh runs one full poll immediately, regardless of push recency.
func (p *PollingService) ForceRefresh(ctx context.Context) error {
	return p.poll(ctx)
}

// runPollingLoop ticks at the configured interval and polls only when the
// push channel has gone quiet.
func (p *PollingService) runPollingLoop() {
	if err := p.poll(p.ctx); err != nil {
		p.Logger.Warn().Err(err).Msg("Initial poll failed, will retry on next tick")
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !p.shouldPoll(time.Now()) {
				p.Logger.Debug().Msg("Push channel healthy, skipping poll")
				continue
			}
			if err := p.poll(p.ctx); err != nil {
				// Existing state is never cleared on a failed poll; the view
				// keeps showing the last known data, flagged stale by age.
				p.Logger.Warn().Err(err).Msg("Full poll failed")
			}

		case <-p.ctx.Done():
			p.Logger.Info().Msg("PollingService stopping gracefully")
			return
		}
	}
}

// shouldPoll reports whether the push channel has been silent long enough to
// warrant a poll. A premises that has never received a push always polls.
func (p *PollingService) shouldPoll(now time.Time) bool {
	lastPush := p.Monitor.LastPushRecency()
	if lastPush == nil {
		return true
	}
	return now.Sub(*lastPush) > p.SilenceThreshold
}

// poll refreshes devices and the gateway snapshot from the backend and
// persists the telemetry for later resurrection.
func (p *PollingService) poll(ctx context.Context) error {
	devices, err := p.Backend.FetchDevices(ctx)
	if err != nil {
		return err
	}
	p.Reconciler.ApplyFullPoll(devices)

	snapshot, err := p.Backend.FetchGatewaySnapshot(ctx)
	if err != nil {
		return err
	}

	if snapshot.Gateway != nil {
		p.Monitor.SetGateway(snapshot.Gateway)
		// Keep the paired serial on disk so a restart does not need to
		// re-provision.
		if p.Identity != nil && snapshot.Gateway.Serial != "" && snapshot.Gateway.Serial != p.Identity.GetGatewaySerial() {
			if err := p.Identity.SaveGatewaySerial(snapshot.Gateway.Serial); err != nil {
				p.Logger.Warn().Err(err).Msg("Failed to persist gateway serial")
			}
		}
	}
	if snapshot.Telemetry != nil {
		p.Monitor.SetSnapshot(snapshot.Telemetry, false)
		if err := p.Cache.Save(p.PremisesID, *snapshot.Telemetry); err != nil {
			p.Logger.Warn().Err(err).Msg("Failed to persist telemetry snapshot")
		}
	}

	p.Logger.Debug().Int("devices", len(devices)).Msg("Full poll applied")
	return nil
}
