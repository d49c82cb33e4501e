// Package client is a typed Go consumer of the Chanc-ai HTTP API. It
// mirrors the browser contract: one call per report, and any failure
// (transport, status, decoding) surfaces as a single error value.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chancai/internal/types"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: api status %d: %s", e.StatusCode, e.Message)
}

// Client calls the Chanc-ai API. The session cookie set by Register and
// Login is kept in an internal jar, so subsequent calls are
// authenticated until Logout.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("client: cookie jar: %w", err)
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			// Report generation waits on several upstreams plus the
			// model; everything else answers well within this.
			Timeout: 2 * time.Minute,
			Jar:     jar,
		},
	}, nil
}

// GenerarInforme requests a report for the vessel with the given IMO
// number. An empty imo issues the bare GET and lets the server pick its
// default vessel, exactly like the page button does.
func (c *Client) GenerarInforme(ctx context.Context, imo string) (*types.InformeResponse, error) {
	var resp types.InformeResponse
	if imo == "" {
		if err := c.doJSON(ctx, http.MethodGet, "/api/generar-informe", nil, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}

	if err := c.doJSON(ctx, http.MethodPost, "/api/generar-informe", types.InformeRequest{IMO: imo}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Register(ctx context.Context, req types.RegisterRequest) (*types.AuthResponse, error) {
	var resp types.AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*types.AuthResponse, error) {
	var resp types.AuthResponse
	req := types.LoginRequest{Email: email, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/logout", nil, nil)
}

func (c *Client) Session(ctx context.Context) (*types.SessionResponse, error) {
	var resp types.SessionResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/session", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Clima returns current conditions for the monitored ports of a country.
func (c *Client) Clima(ctx context.Context, pais string) ([]types.PuertoClima, error) {
	var list []types.PuertoClima
	if err := c.doJSON(ctx, http.MethodGet, "/api/clima/"+url.PathEscape(pais), nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Informes lists the session user's archived reports, newest first.
// limit <= 0 leaves the page size to the server.
func (c *Client) Informes(ctx context.Context, limit int) ([]types.InformeRecord, error) {
	path := "/api/informes"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var list []types.InformeRecord
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: apiMessage(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

// apiMessage pulls the human message out of an error body. Auth
// endpoints answer {"message": ...}, the rest {"error": ...}.
func apiMessage(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
