package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"

	"github.com/homegrid/gateway-client/internal/models"
)

// Client talks to the backend REST API for one premises. Every endpoint
// returns the uniform {success, data, message} envelope; a response with
// success=false surfaces its message as an error.
//
// Reads are retried with exponential backoff since they are idempotent;
// commands are sent exactly once and their failures surfaced to the caller.
type Client struct {
	baseURL    string
	premisesID string
	httpClient *http.Client
	maxRetries uint64
	logger     zerolog.Logger
}

// NewClient creates a backend client for the given premises.
func NewClient(baseURL, premisesID string, timeout time.Duration, maxRetries uint64, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		premisesID: premisesID,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// FetchDevices reads the full device collection for the premises.
func (c *Client) FetchDevices(ctx context.Context) ([]models.Device, error) {
	var devices []models.Device
	err := c.getRetried(ctx, fmt.Sprintf("/premises/%s/devices", c.premisesID), &devices)
	if err != nil {
		return nil, err
	}
	return devices, nil
}

// FetchGatewaySnapshot reads the gateway record and its latest telemetry.
func (c *Client) FetchGatewaySnapshot(ctx context.Context) (*models.GatewaySnapshot, error) {
	var snapshot models.GatewaySnapshot
	err := c.getRetried(ctx, fmt.Sprintf("/premises/%s/gateway", c.premisesID), &snapshot)
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// FetchCredentials reads the registered credential list.
func (c *Client) FetchCredentials(ctx context.Context) ([]models.Credential, error) {
	var credentials []models.Credential
	err := c.getRetried(ctx, fmt.Sprintf("/premises/%s/credentials", c.premisesID), &credentials)
	if err != nil {
		return nil, err
	}
	return credentials, nil
}

// EnrollmentStatus reads the current enrollment state on demand. Used as the
// fallback check when the local session timer fires before a terminal push
// arrives.
func (c *Client) EnrollmentStatus(ctx context.Context) (*models.EnrollmentStatusResponse, error) {
	var status models.EnrollmentStatusResponse
	err := c.getRetried(ctx, fmt.Sprintf("/premises/%s/enrollment", c.premisesID), &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// SendDeviceCommand issues a control command for one device.
func (c *Client) SendDeviceCommand(ctx context.Context, deviceID int64, action string) error {
	body := models.DeviceCommand{DeviceID: deviceID, Action: action}
	path := fmt.Sprintf("/premises/%s/devices/%d/command", c.premisesID, deviceID)
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// CreateDevice registers a new device with the backend.
func (c *Client) CreateDevice(ctx context.Context, device models.NewDevice) (*models.Device, error) {
	var created models.Device
	path := fmt.Sprintf("/premises/%s/devices", c.premisesID)
	if err := c.do(ctx, http.MethodPost, path, device, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// RemoveDevice deletes a device. Removal is always explicit; devices are never
// dropped implicitly by polls or deltas.
func (c *Client) RemoveDevice(ctx context.Context, deviceID int64) error {
	path := fmt.Sprintf("/premises/%s/devices/%d", c.premisesID, deviceID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// BeginEnrollment asks the gateway to enter card learning mode.
func (c *Client) BeginEnrollment(ctx context.Context) (*models.EnrollmentBeginResponse, error) {
	var resp models.EnrollmentBeginResponse
	path := fmt.Sprintf("/premises/%s/enrollment", c.premisesID)
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelEnrollment aborts an in-progress learning session on the backend.
func (c *Client) CancelEnrollment(ctx context.Context) error {
	path := fmt.Sprintf("/premises/%s/enrollment", c.premisesID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// UnpairGateway detaches the gateway from the premises. Terminal: a new
// enrollment creates a new gateway identity.
func (c *Client) UnpairGateway(ctx context.Context) error {
	path := fmt.Sprintf("/premises/%s/gateway", c.premisesID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// getRetried performs a GET with exponential backoff on transient failures.
// Envelope rejections are permanent and not retried.
func (c *Client) getRetried(ctx context.Context, path string, out any) error {
	operation := func() error {
		err := c.do(ctx, http.MethodGet, path, nil, out)
		if err != nil {
			var rejection *RejectionError
			if asRejection(err, &rejection) {
				return backoff.Permanent(err)
			}
			c.logger.Warn().Err(err).Str("path", path).Msg("Transient backend read failure, retrying")
		}
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries)
	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

// do executes one HTTP request, decodes the envelope and unmarshals its data
// payload into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to serialize request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var envelope models.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode response envelope: %w", err)
	}

	if !envelope.Success {
		return &RejectionError{Message: envelope.Message, StatusCode: resp.StatusCode}
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}
