package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerServesIndex(t *testing.T) {
	recorder := httptest.NewRecorder()
	Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
	}
	if ct := recorder.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}

	body := recorder.Body.String()
	for _, want := range []string{`id="btnGenerar"`, `id="resultado"`, `src="app.js"`} {
		if !strings.Contains(body, want) {
			t.Errorf("index.html missing %q", want)
		}
	}
}

func TestHandlerServesClickHandler(t *testing.T) {
	recorder := httptest.NewRecorder()
	Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/app.js", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
	}

	body := recorder.Body.String()
	wantFragments := []string{
		`fetch("/api/generar-informe")`,
		`"Generando informe, por favor espere..."`,
		`"Error al generar el informe. Inténtalo de nuevo."`,
		"btnGenerar.disabled = true",
		"btnGenerar.disabled = false",
		"console.error",
		".finally(",
	}
	for _, want := range wantFragments {
		if !strings.Contains(body, want) {
			t.Errorf("app.js missing %q", want)
		}
	}
}
