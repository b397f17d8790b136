package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"capturepair/internal/api"
)

// Client provides HTTP access to the daemon.
type Client struct {
	base  string
	token string
	http  *http.Client
}

var _ api.Service = (*Client)(nil)

// Dial verifies that a daemon answers at bind and returns a client for it.
func Dial(ctx context.Context, bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("api bind address not configured")
	}
	base := bind
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &Client{
		base:  strings.TrimRight(base, "/"),
		token: strings.TrimSpace(token),
		http:  &http.Client{},
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := c.DriverState(pingCtx); err != nil {
		return nil, err
	}
	return c, nil
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var resp api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp)
	return resp, err
}

// DriverState returns the daemon's driver state without probing.
func (c *Client) DriverState(ctx context.Context) (api.DriverState, error) {
	var resp api.DriverState
	err := c.do(ctx, http.MethodGet, "/api/drivers", nil, &resp)
	return resp, err
}

// CheckDrivers asks the daemon to re-probe host drivers.
func (c *Client) CheckDrivers(ctx context.Context) (api.DriverState, error) {
	var resp api.DriverState
	err := c.do(ctx, http.MethodPost, "/api/drivers/check", nil, &resp)
	return resp, err
}

// InstallDrivers runs the driver installer in the daemon.
func (c *Client) InstallDrivers(ctx context.Context) (api.DriverState, error) {
	var resp api.DriverState
	err := c.do(ctx, http.MethodPost, "/api/drivers/install", nil, &resp)
	return resp, err
}

// Devices returns the daemon's current device list.
func (c *Client) Devices(ctx context.Context) (api.DeviceList, error) {
	var resp api.DeviceList
	err := c.do(ctx, http.MethodGet, "/api/devices", nil, &resp)
	return resp, err
}

// RefreshDevices asks the daemon to enumerate devices.
func (c *Client) RefreshDevices(ctx context.Context) (api.DeviceList, error) {
	var resp api.DeviceList
	err := c.do(ctx, http.MethodPost, "/api/devices/refresh", nil, &resp)
	return resp, err
}

// BeginSession runs a setup session in the daemon.
func (c *Client) BeginSession(ctx context.Context, device string) (api.Session, error) {
	var resp api.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions", api.BeginSessionRequest{DeviceID: device}, &resp); err != nil {
		return api.Session{}, err
	}
	if resp.Session == nil {
		return api.Session{}, errors.New("daemon returned no session")
	}
	return *resp.Session, nil
}

// CurrentSession returns the daemon's in-flight session or nil.
func (c *Client) CurrentSession(ctx context.Context) (*api.Session, error) {
	var resp api.SessionResponse
	if err := c.do(ctx, http.MethodGet, "/api/sessions/current", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Session, nil
}

// History lists finished sessions, newest first.
func (c *Client) History(ctx context.Context, query api.HistoryQuery) ([]api.Session, error) {
	values := url.Values{}
	if query.DeviceID != "" {
		values.Set("device", query.DeviceID)
	}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}
	path := "/api/sessions/history"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp api.HistoryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// ExportPairingFile asks the daemon to write a pairing file.
func (c *Client) ExportPairingFile(ctx context.Context, device, destination string) (api.Session, error) {
	path := "/api/devices/" + url.PathEscape(strings.TrimSpace(device)) + "/pairing-file"
	var resp api.SessionResponse
	if err := c.do(ctx, http.MethodPost, path, api.PairingFileRequest{Destination: destination}, &resp); err != nil {
		return api.Session{}, err
	}
	if resp.Session == nil {
		return api.Session{}, errors.New("daemon returned no session")
	}
	return *resp.Session, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification(ctx context.Context) (bool, string, error) {
	var resp struct {
		Sent    bool   `json:"sent"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, &resp); err != nil {
		return false, "", err
	}
	return resp.Sent, resp.Message, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr api.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(raw))
		}
		return &api.RemoteError{Status: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
