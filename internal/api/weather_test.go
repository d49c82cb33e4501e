package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"chancai/internal/types"
)

func TestClimaUnknownCountry(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})
	router := s.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/clima/atlantida", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusNotFound)
	}
	if !strings.Contains(recorder.Body.String(), "País no encontrado.") {
		t.Fatalf("body %q does not carry the unknown-country message", recorder.Body.String())
	}
}

func TestClimaReturnsPortConditions(t *testing.T) {
	var mu sync.Mutex
	var queries []string

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/current.json" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("key"); got != "wx-key" {
			t.Errorf("weather key = %q, want %q", got, "wx-key")
		}
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("q"))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"current":{"condition":{"text":"Despejado"},"wind_kph":14.8}}`))
	}))
	defer upstream.Close()

	s := newTestServerWithWeather(t, &stubGenerator{}, upstream.URL)
	router := s.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/clima/peru", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", recorder.Code, http.StatusOK, recorder.Body.String())
	}

	var list []types.PuertoClima
	if err := json.Unmarshal(recorder.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode clima response: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("ports = %d, want 3", len(list))
	}
	if list[0].Puerto != "Callao" || list[0].Condicion != "Despejado" || list[0].VientoKPH != 14.8 {
		t.Fatalf("first port = %+v, want Callao with the stubbed conditions", list[0])
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"Callao,peru", "Paita,peru", "Matarani,peru"}
	if len(queries) != len(want) {
		t.Fatalf("upstream queries = %v, want %v", queries, want)
	}
	for i := range want {
		if queries[i] != want[i] {
			t.Fatalf("query[%d] = %q, want %q", i, queries[i], want[i])
		}
	}
}

func TestClimaUnreachableUpstream(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})
	router := s.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/clima/chile", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	// Every port lookup fails; the endpoint still answers with a list.
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(recorder.Body.String()); got != "[]" {
		t.Fatalf("body = %q, want an empty list", got)
	}
}
