package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"chancai/internal/types"
)

// registerUser creates an account through the public endpoint and
// returns its session cookie.
func registerUser(t *testing.T, router chi.Router, email string) *http.Cookie {
	t.Helper()

	body := fmt.Sprintf(`{"nombres":"Mateo","apellidos":"Quispe","email":%q,"pais":"Peru","password":"secreto123"}`, email)
	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	return sessionCookie(t, recorder)
}

func sessionCookie(t *testing.T, recorder *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range recorder.Result().Cookies() {
		if c.Name == authCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no %s cookie in the response", authCookieName)
	return nil
}

func TestRegisterLogsTheAccountIn(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})
	router := s.routes()

	body := `{"nombres":"Mateo","apellidos":"Quispe","email":"mateo@chancai.pe","pais":"Peru","password":"secreto123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %s)", recorder.Code, http.StatusCreated, recorder.Body.String())
	}
	if !strings.Contains(recorder.Body.String(), "¡Registro exitoso!") {
		t.Fatalf("body %q does not contain the success message", recorder.Body.String())
	}

	cookie := sessionCookie(t, recorder)
	if !cookie.HttpOnly {
		t.Fatalf("session cookie is not HttpOnly")
	}

	// The fresh cookie authenticates the session endpoint right away.
	req = httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(cookie)
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	var sess types.SessionResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session response: %v", err)
	}
	if !sess.LoggedIn {
		t.Fatalf("logged_in = false, want true")
	}
	if sess.User == nil || sess.User.Nombres != "Mateo" || sess.User.Pais != "Peru" {
		t.Fatalf("session user = %+v, want Mateo from Peru", sess.User)
	}
}

func TestRegisterRejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"nombres":`},
		{name: "missing password", body: `{"nombres":"Ana","apellidos":"Mar","email":"ana@chancai.pe","pais":"Chile"}`},
		{name: "blank email", body: `{"nombres":"Ana","apellidos":"Mar","email":"   ","pais":"Chile","password":"secreto123"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &stubGenerator{})
			router := s.routes()

			req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, req)

			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", recorder.Code, http.StatusBadRequest)
			}
			if !strings.Contains(recorder.Body.String(), "Solicitud inválida.") {
				t.Fatalf("body %q does not carry the validation message", recorder.Body.String())
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})
	router := s.routes()
	registerUser(t, router, "mateo@chancai.pe")

	body := `{"nombres":"Otro","apellidos":"Usuario","email":"mateo@chancai.pe","pais":"Peru","password":"distinta456"}`
	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusConflict)
	}
	if !strings.Contains(recorder.Body.String(), "El correo ya está registrado.") {
		t.Fatalf("body %q does not carry the duplicate message", recorder.Body.String())
	}
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})
	router := s.routes()
	registerUser(t, router, "mateo@chancai.pe")

	tests := []struct {
		name         string
		body         string
		wantStatus   int
		wantContains string
	}{
		{
			name:         "valid credentials",
			body:         `{"email":"mateo@chancai.pe","password":"secreto123"}`,
			wantStatus:   http.StatusOK,
			wantContains: "Inicio de sesión exitoso.",
		},
		{
			name:         "wrong password",
			body:         `{"email":"mateo@chancai.pe","password":"incorrecta"}`,
			wantStatus:   http.StatusUnauthorized,
			wantContains: "Credenciales inválidas.",
		},
		{
			name:         "unknown email",
			body:         `{"email":"nadie@chancai.pe","password":"secreto123"}`,
			wantStatus:   http.StatusUnauthorized,
			wantContains: "Credenciales inválidas.",
		},
		{
			name:         "malformed body",
			body:         `{"email":`,
			wantStatus:   http.StatusBadRequest,
			wantContains: "Solicitud inválida.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, req)

			if recorder.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", recorder.Code, tt.wantStatus, recorder.Body.String())
			}
			if !strings.Contains(recorder.Body.String(), tt.wantContains) {
				t.Fatalf("body %q does not contain %q", recorder.Body.String(), tt.wantContains)
			}
		})
	}
}

func TestLoginSetsSessionCookie(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})
	router := s.routes()
	registerUser(t, router, "mateo@chancai.pe")

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"email":"mateo@chancai.pe","password":"secreto123"}`))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
	}
	cookie := sessionCookie(t, recorder)
	if cookie.MaxAge <= 0 {
		t.Fatalf("cookie MaxAge = %d, want a positive lifetime", cookie.MaxAge)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})
	router := s.routes()

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
	}
	if !strings.Contains(recorder.Body.String(), "Sesión cerrada.") {
		t.Fatalf("body %q does not carry the logout message", recorder.Body.String())
	}

	var cleared bool
	for _, c := range recorder.Result().Cookies() {
		if c.Name == authCookieName && c.Value == "" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("logout did not clear the %s cookie", authCookieName)
	}
}

func TestSessionStates(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})
	router := s.routes()

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{name: "no cookie", cookie: nil},
		{name: "garbage cookie", cookie: &http.Cookie{Name: authCookieName, Value: "not-a-jwt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, req)

			if recorder.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
			}
			if !strings.Contains(recorder.Body.String(), `"logged_in":false`) {
				t.Fatalf("body %q does not report an anonymous session", recorder.Body.String())
			}
		})
	}
}

func TestInformesHistoryRequiresSession(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})
	router := s.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/informes", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(recorder.Body.String(), "No autorizado.") {
		t.Fatalf("body %q does not carry the auth message", recorder.Body.String())
	}
}

func TestInformesHistoryListsOwnReports(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})
	router := s.routes()
	cookie := registerUser(t, router, "mateo@chancai.pe")

	ctx := context.Background()
	user, _, err := s.store.GetUserByEmail(ctx, "mateo@chancai.pe")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}

	uid := user.ID
	lat, lng := -12.0464, -77.1428
	ev := types.ReportGeneratedEvent{
		ReportID:    "informe-1",
		IMO:         "9811000",
		VesselName:  "ETERNAL LUCK",
		UserID:      &uid,
		Addressee:   "Mateo",
		Lat:         &lat,
		Lng:         &lng,
		ReportText:  "Informe archivado.",
		DurationMS:  1200,
		GeneratedAt: time.Now().UTC(),
	}
	if err := s.store.InsertInforme(ctx, ev); err != nil {
		t.Fatalf("InsertInforme() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/informes", nil)
	req.AddCookie(cookie)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", recorder.Code, http.StatusOK, recorder.Body.String())
	}

	var records []types.InformeRecord
	if err := json.Unmarshal(recorder.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode history response: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].IMO != "9811000" || records[0].Barco != "ETERNAL LUCK" {
		t.Fatalf("record = %+v, want the archived report", records[0])
	}
	if records[0].Coordenadas == nil || records[0].Coordenadas[0] != lat {
		t.Fatalf("record coordinates = %v, want [%v %v]", records[0].Coordenadas, lat, lng)
	}
}
