// Package gfw queries the Global Fishing Watch v3 gateway for vessel
// identity and recent activity.
package gfw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"chancai/internal/config"
)

const (
	identityDataset   = "public-global-vessel-identity:latest"
	fishingDataset    = "public-global-fishing-events:latest"
	portVisitsDataset = "public-global-port-visits-events:latest"

	eventWindowDays  = 90
	eventLimit       = 5
	summarizedEvents = 5
)

// ErrNotConfigured is returned when no API token is available.
var ErrNotConfigured = errors.New("gfw: api token not configured")

// StatusError reports a non-2xx answer from the vessel search endpoint.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gfw: vessel search returned status %d", e.StatusCode)
}

// Note marks lookups that succeeded at the HTTP level but found no usable
// vessel data.
type Note int

const (
	NoteNone Note = iota
	// NoteNoRecords: the IMO has no entry in the public vessel index.
	NoteNoRecords
	// NoteNoAIS: the vessel is indexed but carries no self-reported
	// AIS identity, so no events can be queried.
	NoteNoAIS
)

// Registry is the registry block of the first indexed entry.
type Registry struct {
	Shipname  string
	Flag      string
	GearTypes []string
	Sources   []string
}

// Event is one activity event inside the lookback window.
type Event struct {
	Type  string
	Start time.Time
}

// Activity is the outcome of a vessel lookup. When Note is set the other
// fields are zero.
type Activity struct {
	Note     Note
	Registry Registry
	Events   []Event
}

// Client talks to the GFW gateway with Bearer authentication.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

func NewClient(cfg config.UpstreamConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiToken:   cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type searchResponse struct {
	Entries []searchEntry `json:"entries"`
}

type searchEntry struct {
	SelfReportedInfo []selfReportedInfo `json:"selfReportedInfo"`
	RegistryInfo     []registryInfo     `json:"registryInfo"`
}

type selfReportedInfo struct {
	ID string `json:"id"`
}

type registryInfo struct {
	Shipname   string     `json:"shipname"`
	Flag       string     `json:"flag"`
	Geartype   []gearType `json:"geartype"`
	SourceCode []string   `json:"sourceCode"`
}

type gearType struct {
	Name string `json:"name"`
}

type eventsResponse struct {
	Entries []eventEntry `json:"entries"`
}

type eventEntry struct {
	Type  string `json:"type"`
	Start string `json:"start"`
}

// Lookup searches the public vessel index for the given IMO and, when the
// vessel has a self-reported identity, collects its fishing and port-visit
// events over the last 90 days. Event queries that answer non-2xx are
// skipped rather than failing the lookup.
func (c *Client) Lookup(ctx context.Context, imo string) (*Activity, error) {
	if c.apiToken == "" {
		return nil, ErrNotConfigured
	}

	searchURL := fmt.Sprintf("%s/v3/vessels/search?query=%s&datasets[0]=%s",
		c.baseURL, url.QueryEscape(imo), identityDataset)

	var search searchResponse
	if err := c.getJSON(ctx, searchURL, &search); err != nil {
		return nil, err
	}

	if len(search.Entries) == 0 {
		return &Activity{Note: NoteNoRecords}, nil
	}

	entry := search.Entries[0]
	if len(entry.SelfReportedInfo) == 0 {
		return &Activity{Note: NoteNoAIS}, nil
	}
	vesselID := entry.SelfReportedInfo[0].ID

	var registry registryInfo
	if len(entry.RegistryInfo) > 0 {
		registry = entry.RegistryInfo[0]
	}

	activity := &Activity{
		Registry: Registry{
			Shipname: registry.Shipname,
			Flag:     registry.Flag,
			Sources:  registry.SourceCode,
		},
	}
	for _, g := range registry.Geartype {
		activity.Registry.GearTypes = append(activity.Registry.GearTypes, g.Name)
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -eventWindowDays)

	var events []Event
	for _, dataset := range []string{fishingDataset, portVisitsDataset} {
		eventsURL := fmt.Sprintf("%s/v3/events?vessels[0]=%s&datasets[0]=%s&start-date=%s&end-date=%s&limit=%d",
			c.baseURL, url.QueryEscape(vesselID), dataset,
			start.Format("2006-01-02"), end.Format("2006-01-02"), eventLimit)

		var resp eventsResponse
		if err := c.getJSON(ctx, eventsURL, &resp); err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				continue
			}
			return nil, err
		}

		for _, e := range resp.Entries {
			ts, err := time.Parse(time.RFC3339, e.Start)
			if err != nil {
				continue
			}
			events = append(events, Event{Type: e.Type, Start: ts})
		}
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Start.After(events[j].Start) })
	if len(events) > summarizedEvents {
		events = events[:summarizedEvents]
	}
	activity.Events = events

	return activity, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("gfw: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gfw: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gfw: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("gfw: decode response: %w", err)
	}
	return nil
}
