package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"chancai/internal/config"
	"chancai/internal/store"
	"chancai/internal/types"
	"chancai/internal/weather"
)

// stubGenerator records the last generation request and answers with a
// canned report.
type stubGenerator struct {
	lastIMO  string
	lastUser string
	calls    int
	resp     *types.InformeResponse
	err      error
}

func (g *stubGenerator) Generate(_ context.Context, imo, userName string) (*types.InformeResponse, error) {
	g.calls++
	g.lastIMO = imo
	g.lastUser = userName
	if g.err != nil {
		return nil, g.err
	}
	return g.resp, nil
}

// newTestServer wires a Server against an in-memory database, with no
// broker, no Redis and a weather upstream nothing listens on.
func newTestServer(t *testing.T, gen Generator) *Server {
	t.Helper()
	return newTestServerWithWeather(t, gen, "http://127.0.0.1:0")
}

func newTestServerWithWeather(t *testing.T, gen Generator, weatherURL string) *Server {
	t.Helper()

	db, err := sqlx.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared&_pragma=foreign_keys(ON)")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})

	logger := slog.New(slog.DiscardHandler)
	st := store.New(db, logger)
	if err := st.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	cfg := config.APIConfig{
		Common: config.Common{
			Weather: config.UpstreamConfig{BaseURL: weatherURL, APIKey: "wx-key", Timeout: 2 * time.Second},
		},
		HTTPAddr:               ":0",
		DefaultIMO:             "9811000",
		ClimaCacheTTL:          time.Minute,
		HealthLivenessEndpoint: "/healthz",
		HealthReadyEndpoint:    "/readyz",
	}

	climaSvc := weather.NewService(weather.NewClient(cfg.Weather), nil, cfg.ClimaCacheTTL, logger)
	return NewServer(cfg, st, nil, gen, climaSvc, nil, logger)
}

func TestOperationalEndpoints(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})
	router := s.routes()

	tests := []struct {
		name         string
		path         string
		wantContains string
	}{
		{name: "liveness", path: "/healthz", wantContains: "ok"},
		{name: "readiness", path: "/readyz", wantContains: "ok"},
		{name: "version", path: "/version", wantContains: `"version"`},
		{name: "metrics", path: "/metrics", wantContains: "reports_generated_total"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, req)

			if recorder.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
			}
			if !strings.Contains(recorder.Body.String(), tt.wantContains) {
				t.Fatalf("response body %q does not contain %q", recorder.Body.String(), tt.wantContains)
			}
		})
	}
}

func TestFrontendServedAtRoot(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})
	router := s.routes()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
	}
	if ct := recorder.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("Content-Type = %q, want text/html", ct)
	}
	if !strings.Contains(recorder.Body.String(), `id="btnGenerar"`) {
		t.Fatalf("index page does not contain the generate button")
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})
	router := s.routes()

	req := httptest.NewRequest(http.MethodOptions, "/api/generar-informe", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want the request origin", got)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("Access-Control-Allow-Credentials = %q, want %q", got, "true")
	}
}
