package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/homegrid/gateway-client/internal/constants"
	"github.com/homegrid/gateway-client/internal/device_state"
	"github.com/homegrid/gateway-client/internal/models"
	"github.com/homegrid/gateway-client/pkg/mqtt"
)

// EnrollmentAPI covers the backend calls of the card learning workflow.
type EnrollmentAPI interface {
	BeginEnrollment(ctx context.Context) (*models.EnrollmentBeginResponse, error)
	EnrollmentStatus(ctx context.Context) (*models.EnrollmentStatusResponse, error)
	CancelEnrollment(ctx context.Context) error
}

// CredentialRefresher re-reads the credential list after a successful
// enrollment.
type CredentialRefresher interface {
	RefreshCredentials(ctx context.Context) error
}

// ErrEnrollmentInProgress is returned when a session start is attempted while
// another session is awaiting the hardware. Sessions are single-flight per
// premises: a second start is rejected, never queued.
var ErrEnrollmentInProgress = errors.New("enrollment already in progress")

// EnrollmentService runs the bounded card learning workflow:
//
//	idle -> awaiting_hardware -> (success | failure | timed_out) -> idle
//
// A session subscribes to the enrollment-status push topic and arms a local
// timer. A terminal push ends the session; if the timer fires first, one
// fallback status poll checks whether a terminal result was missed before the
// session is abandoned as timed out. Every exit path cancels the timer and
// drops the session subscription exactly once.
type EnrollmentService struct {
	PremisesID string
	QOS        int
	Timeout    time.Duration
	MqttClient mqtt.MQTTClient
	Backend    EnrollmentAPI
	Monitor    *device_state.GatewayMonitor
	Refresher  CredentialRefresher
	Logger     zerolog.Logger

	mu           sync.Mutex
	running      bool
	state        string
	sessionID    string
	sessionToken string
	subHandle    string
	timer        *time.Timer
	lastResult   *models.EnrollmentResult
}

// NewEnrollmentService initializes a new EnrollmentService.
func NewEnrollmentService(premisesID string, qos int, timeout time.Duration, mqttClient mqtt.MQTTClient,
	backendClient EnrollmentAPI, monitor *device_state.GatewayMonitor, refresher CredentialRefresher,
	logger zerolog.Logger) *EnrollmentService {

	return &EnrollmentService{
		PremisesID: premisesID,
		QOS:        qos,
		Timeout:    timeout,
		MqttClient: mqttClient,
		Backend:    backendClient,
		Monitor:    monitor,
		Refresher:  refresher,
		Logger:     logger,
		state:      constants.EnrollmentIdle,
	}
}

// Start marks the service ready to accept sessions.
func (e *EnrollmentService) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		e.Logger.Warn().Msg("EnrollmentService is already running")
		return errors.New("enrollment service is already running")
	}

	e.running = true
	e.state = constants.EnrollmentIdle
	e.Logger.Info().Str("premises_id", e.PremisesID).Msg("EnrollmentService started successfully")
	return nil
}

// Stop tears the service down. An active session's timer and subscription are
// released; leaking them across open/close cycles is a resource leak, not a
// style issue.
func (e *EnrollmentService) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		e.Logger.Warn().Msg("EnrollmentService is not running")
		return errors.New("enrollment service is not running")
	}

	e.releaseSessionLocked()
	e.state = constants.EnrollmentIdle
	e.running = false

	e.Logger.Info().Msg("EnrollmentService stopped successfully")
	return nil
}

// SessionState returns the current state of the enrollment state machine.
func (e *EnrollmentService) SessionState() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastResult returns the outcome of the most recently finished session.
func (e *EnrollmentService) LastResult() (models.EnrollmentResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastResult == nil {
		return models.EnrollmentResult{}, false
	}
	return *e.lastResult, true
}

// StartSession begins a learning session: subscribes the status topic, arms
// the local timeout timer and issues the backend begin call.
func (e *EnrollmentService) StartSession(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return errors.New("enrollment service is not running")
	}
	if e.state != constants.EnrollmentIdle {
		e.mu.Unlock()
		return ErrEnrollmentInProgress
	}
	// Reserve the slot before any I/O so a concurrent start is rejected
	// immediately. The token ties the timer and the cleanup paths to this
	// session even if it ends while a call below is still in flight.
	token := uuid.New().String()
	e.state = constants.EnrollmentAwaitingHardware
	e.sessionToken = token
	e.sessionID = token
	e.mu.Unlock()

	handle, err := e.MqttClient.Subscribe(constants.EnrollmentStatusTopic(e.PremisesID), byte(e.QOS), e.handleStatusPush)
	if err != nil {
		e.Logger.Warn().Err(err).Msg("Enrollment status subscription failed, relying on timeout fallback poll")
	}

	// Record the handle and arm the timer before the begin call goes out: the
	// hardware can report a terminal result while the request is in flight,
	// and that transition must find everything it has to release.
	e.mu.Lock()
	if e.sessionToken != token {
		// A terminal push already ended the session.
		e.mu.Unlock()
		if handle != "" {
			e.MqttClient.Unsubscribe(handle)
		}
		return nil
	}
	e.subHandle = handle
	e.timer = time.AfterFunc(e.Timeout, func() { e.handleTimeout(token) })
	e.mu.Unlock()

	resp, err := e.Backend.BeginEnrollment(ctx)
	if err != nil {
		e.mu.Lock()
		if e.sessionToken == token {
			e.releaseSessionLocked()
			e.state = constants.EnrollmentIdle
		}
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	if e.sessionToken != token {
		// Finished while the begin call was in flight; everything is released.
		e.mu.Unlock()
		return nil
	}
	if resp.CorrelationID != "" {
		e.sessionID = resp.CorrelationID
	}
	sessionID := e.sessionID
	e.mu.Unlock()

	e.Logger.Info().Str("session_id", sessionID).Msg("Enrollment session started, awaiting hardware")
	return nil
}

// CancelSession aborts an active session on the backend and returns the state
// machine to idle. Cancelling with no active session is a no-op.
func (e *EnrollmentService) CancelSession(ctx context.Context) error {
	e.mu.Lock()
	if e.state != constants.EnrollmentAwaitingHardware {
		e.mu.Unlock()
		return nil
	}
	e.releaseSessionLocked()
	e.state = constants.EnrollmentIdle
	e.mu.Unlock()

	if err := e.Backend.CancelEnrollment(ctx); err != nil {
		e.Logger.Warn().Err(err).Msg("Backend enrollment cancel failed")
		return err
	}

	e.Logger.Info().Msg("Enrollment session cancelled")
	return nil
}

// handleStatusPush processes enrollment-status push messages for the active
// session. Non-terminal progress updates are ignored.
func (e *EnrollmentService) handleStatusPush(topic string, payload []byte) {
	e.Monitor.MarkPushActivity(time.Now())

	var event models.EnrollmentStatusEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		e.Logger.Warn().Err(err).Str("topic", topic).Msg("Malformed enrollment status payload, dropping")
		return
	}
	if !event.Terminal() {
		return
	}

	if event.Success {
		e.finishSession("", constants.EnrollmentSuccess, event.Result)
	} else {
		e.finishSession("", constants.EnrollmentFailure, event.Result)
	}
}

// handleTimeout fires when no terminal push arrived within the local timeout.
// One fallback poll checks whether the result was delivered but missed; only
// if that also shows no terminal state is the session abandoned. The token
// keeps a timer that lost the Stop race from touching a later session.
func (e *EnrollmentService) handleTimeout(token string) {
	e.mu.Lock()
	if e.state != constants.EnrollmentAwaitingHardware || e.sessionToken != token {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := e.Backend.EnrollmentStatus(ctx)
	if err == nil && status.Complete && !status.InProgress {
		if status.Success {
			e.finishSession(token, constants.EnrollmentSuccess, status.Result)
		} else {
			e.finishSession(token, constants.EnrollmentFailure, status.Result)
		}
		return
	}

	e.finishSession(token, constants.EnrollmentTimedOut, "timed out, please retry")
}

// finishSession performs the terminal transition. It is idempotent: whichever
// of the push handler and the timeout path runs first wins, and the timer is
// cancelled exactly once. A non-empty token restricts the transition to the
// session it was issued for; the push path passes "" since the topic is
// premises-scoped and always refers to the active session.
func (e *EnrollmentService) finishSession(token, state, message string) {
	e.mu.Lock()
	if e.state != constants.EnrollmentAwaitingHardware || (token != "" && token != e.sessionToken) {
		e.mu.Unlock()
		return
	}

	sessionID := e.sessionID
	e.releaseSessionLocked()
	e.lastResult = &models.EnrollmentResult{
		SessionID: sessionID,
		State:     state,
		Message:   message,
		EndedAt:   time.Now(),
	}
	e.state = constants.EnrollmentIdle
	e.mu.Unlock()

	e.Logger.Info().Str("session_id", sessionID).Str("outcome", state).Msg("Enrollment session finished")

	if state == constants.EnrollmentSuccess && e.Refresher != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = e.Refresher.RefreshCredentials(ctx)
		}()
	}
}

// releaseSessionLocked cancels the timer and drops the session subscription.
// Both operations are no-ops when already released. Caller holds the mutex.
func (e *EnrollmentService) releaseSessionLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.subHandle != "" {
		e.MqttClient.Unsubscribe(e.subHandle)
		e.subHandle = ""
	}
	e.sessionID = ""
	e.sessionToken = ""
}
