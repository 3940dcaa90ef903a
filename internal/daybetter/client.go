// Package daybetter is a client for the DayBetter cloud integration API.
// It owns request and response shapes only; retry policy belongs to callers.
package daybetter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/daybetterd/internal/convert"
)

const maxErrorBody = 512

// Client talks to the DayBetter cloud API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new DayBetter client.
// Parameters:
//   - baseURL: API root, e.g. https://cloud.v2.dbiot.link/daybetter/hass/api/v1.0
//   - timeout: per-request HTTP timeout (0 = 10s)
//   - rateLimitRPS: outbound request budget (0 = 5 rps)
func NewClient(baseURL string, timeout time.Duration, rateLimitRPS float64) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if rateLimitRPS == 0 {
		rateLimitRPS = 5.0
	}

	burst := int(rateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rateLimitRPS), burst),
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Integrate exchanges a one-time user code for an access token.
func (c *Client) Integrate(ctx context.Context, userCode string) (*Credential, error) {
	var env envelope[struct {
		Token     string `json:"hassCodeToken"`
		ExpiresAt any    `json:"expiresAt"`
		ExpiresIn any    `json:"expiresIn"`
	}]
	if err := c.post(ctx, "integrate", "", map[string]string{"hassCode": userCode}, &env); err != nil {
		return nil, err
	}

	if !truthy(env.Code, true) {
		return nil, fmt.Errorf("integrate: %w: %s", ErrRejected, env.Message)
	}
	if env.Data.Token == "" {
		return nil, fmt.Errorf("integrate: %w: missing hassCodeToken", ErrMalformedResponse)
	}

	cred := &Credential{Token: env.Data.Token}
	if exp := convert.SafeInt(env.Data.ExpiresAt, 0); exp > 0 {
		cred.ExpiresAt = int64(exp)
	} else if in := convert.SafeInt(env.Data.ExpiresIn, 0); in > 0 {
		cred.ExpiresAt = time.Now().Add(time.Duration(in) * time.Second).Unix()
	}

	return cred, nil
}

// Devices lists all devices bound to the account.
func (c *Client) Devices(ctx context.Context, token string) ([]Device, error) {
	var env envelope[[]Device]
	if err := c.post(ctx, "devices", token, struct{}{}, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// DeviceStatus fetches the current state of a single device.
func (c *Client) DeviceStatus(ctx context.Context, token, deviceName string) (*Status, error) {
	var env envelope[*Status]
	if err := c.post(ctx, "device", token, map[string]string{"deviceName": deviceName}, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, fmt.Errorf("device %s: %w: missing data", deviceName, ErrMalformedResponse)
	}
	return env.Data, nil
}

// Control sends a single control command. A rejected command is reported
// through ControlResult.Applied, not as an error.
func (c *Client) Control(ctx context.Context, token string, cmd Command) (*ControlResult, error) {
	var result ControlResult
	if err := c.post(ctx, "control", token, cmd, &result); err != nil {
		return nil, err
	}

	log.Debug().
		Str("device", cmd.DeviceName).
		Int("type", cmd.Type).
		Bool("applied", result.Applied()).
		Msg("Control command sent")

	return &result, nil
}

// PIDs returns the vendor's mold PID lists per device class.
func (c *Client) PIDs(ctx context.Context, token string) (*PIDs, error) {
	var env envelope[PIDs]
	if err := c.post(ctx, "pids", token, struct{}{}, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("%s/hass/%s", c.baseURL, path)
}

func (c *Client) post(ctx context.Context, path, token string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: path, StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: %v", path, ErrMalformedResponse, err)
	}

	return nil
}
