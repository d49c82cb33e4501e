// Package shiptracking queries the MyShipTracking v2 API for live AIS
// vessel positions.
package shiptracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chancai/internal/config"
)

// ErrNotConfigured is returned when no API key is available. Callers decide
// whether that is fatal or just a degraded report section.
var ErrNotConfigured = errors.New("shiptracking: api key not configured")

// NotFoundError reports that MyShipTracking has no vessel under the
// requested IMO number.
type NotFoundError struct {
	IMO string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("shiptracking: no vessel found for imo %s", e.IMO)
}

// UpstreamError carries a failure the API reported in its own envelope,
// as opposed to a transport or HTTP-level failure.
type UpstreamError struct {
	Code    string
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("shiptracking: api error %s: %s", e.Code, e.Message)
}

// Position is the live snapshot of one vessel. Pointer fields are absent
// when the upstream omitted them; a vessel in port often has no ETA.
type Position struct {
	VesselName  string   `json:"vessel_name"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	SpeedKnots  *float64 `json:"speed"`
	Course      *float64 `json:"course"`
	Destination string   `json:"destination"`
	ETA         string   `json:"eta"`
	Received    string   `json:"received"`
}

// Client talks to MyShipTracking with Bearer authentication.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg config.UpstreamConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// envelope wraps every v2 response; on failure status is not "success"
// and code/message describe the problem.
type envelope struct {
	Status  string   `json:"status"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Data    Position `json:"data"`
}

// Fetch returns the current position of the vessel with the given IMO.
func (c *Client) Fetch(ctx context.Context, imo string) (*Position, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/api/v2/vessel?imo=%s", c.baseURL, url.QueryEscape(imo))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("shiptracking: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shiptracking: fetch vessel: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("shiptracking: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("shiptracking: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("shiptracking: decode response: %w", err)
	}

	if env.Status != "success" {
		if strings.Contains(env.Code, "ERR_VESSEL_NOT_FOUND") {
			return nil, &NotFoundError{IMO: imo}
		}
		return nil, &UpstreamError{Code: env.Code, Message: env.Message}
	}

	return &env.Data, nil
}
