package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chancai/internal/config"
)

func newTestService(t *testing.T, baseURL string) *Service {
	t.Helper()

	client := NewClient(config.UpstreamConfig{
		BaseURL: baseURL,
		APIKey:  "wx-key",
		Timeout: 2 * time.Second,
	})
	return NewService(client, nil, time.Minute, slog.New(slog.DiscardHandler))
}

// fakeUpstream answers every current-conditions query, echoing the
// queried location into the condition text so callers are attributable.
func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/current.json" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"current":{"condition":{"text":"Despejado en %s"},"wind_kph":14.8}}`, q)
	}))
}

func TestForCountryUnknown(t *testing.T) {
	s := newTestService(t, "http://127.0.0.1:0")

	_, err := s.ForCountry(context.Background(), "atlantida")
	if !errors.Is(err, ErrUnknownCountry) {
		t.Fatalf("error = %v, want ErrUnknownCountry", err)
	}
}

func TestForCountryKeepsCallerSpelling(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()

	s := newTestService(t, upstream.URL)

	list, err := s.ForCountry(context.Background(), "Peru")
	if err != nil {
		t.Fatalf("ForCountry() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("ports = %d, want 3", len(list))
	}
	if list[0].Puerto != "Callao" {
		t.Fatalf("first port = %q, want Callao", list[0].Puerto)
	}
	// The country is matched case-insensitively but queried as given.
	if list[0].Condicion != "Despejado en Callao,Peru" {
		t.Fatalf("condition = %q, want the query echoed with the original case", list[0].Condicion)
	}
	if list[0].VientoKPH != 14.8 {
		t.Fatalf("wind = %v, want 14.8", list[0].VientoKPH)
	}
}

func TestForCountrySkipsFailedPorts(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if strings.HasPrefix(q, "Paita,") {
			http.Error(w, "upstream busy", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"current":{"condition":{"text":"Nublado"},"wind_kph":9.1}}`))
	}))
	defer upstream.Close()

	s := newTestService(t, upstream.URL)

	list, err := s.ForCountry(context.Background(), "peru")
	if err != nil {
		t.Fatalf("ForCountry() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ports = %d, want the failed port skipped", len(list))
	}
	for _, pc := range list {
		if pc.Puerto == "Paita" {
			t.Fatalf("failed port %q still in the list", pc.Puerto)
		}
	}
}

func TestRefreshCoversEveryCountry(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()

	s := newTestService(t, upstream.URL)

	want := 0
	for _, ports := range portsByCountry {
		want += len(ports)
	}

	if got := s.Refresh(context.Background()); got != want {
		t.Fatalf("Refresh() = %d, want %d", got, want)
	}
}

func TestRefreshStopsOnCancel(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()

	s := newTestService(t, upstream.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := s.Refresh(ctx); got != 0 {
		t.Fatalf("Refresh() on a cancelled context = %d, want 0", got)
	}
}

func TestPortsLookup(t *testing.T) {
	tests := []struct {
		pais   string
		want   int
		wantOK bool
	}{
		{pais: "peru", want: 3, wantOK: true},
		{pais: "PERU", want: 3, wantOK: true},
		{pais: "Chile", want: 2, wantOK: true},
		{pais: "atlantida", want: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.pais, func(t *testing.T) {
			ports, ok := Ports(tt.pais)
			if ok != tt.wantOK {
				t.Fatalf("Ports(%q) ok = %v, want %v", tt.pais, ok, tt.wantOK)
			}
			if len(ports) != tt.want {
				t.Fatalf("Ports(%q) = %d entries, want %d", tt.pais, len(ports), tt.want)
			}
		})
	}
}
