// Package weather fetches current conditions from weatherapi.com and
// serves per-country port weather with a Redis read-through cache.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chancai/internal/config"
)

// Observation is the current-conditions subset the reports care about.
type Observation struct {
	Condition string
	WindKPH   float64
}

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

type currentResponse struct {
	Current struct {
		Condition struct {
			Text string `json:"text"`
		} `json:"condition"`
		WindKPH float64 `json:"wind_kph"`
	} `json:"current"`
}

// Current returns conditions for a weatherapi.com query string, either
// "lat,lng" coordinates or a "Port,Country" pair.
func (c *Client) Current(ctx context.Context, query string) (*Observation, error) {
	endpoint := fmt.Sprintf("%s/v1/current.json?key=%s&q=%s&aqi=no",
		c.baseURL, url.QueryEscape(c.apiKey), url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("weather: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather: fetch conditions: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("weather: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("weather: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var cr currentResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("weather: decode response: %w", err)
	}

	return &Observation{
		Condition: cr.Current.Condition.Text,
		WindKPH:   cr.Current.WindKPH,
	}, nil
}
