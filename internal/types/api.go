package types

import "time"

// Auth types. JSON field names follow the public API contract, which is
// Spanish end to end.

type RegisterRequest struct {
	Nombres   string `json:"nombres"`
	Apellidos string `json:"apellidos"`
	Email     string `json:"email"`
	Pais      string `json:"pais"`
	Password  string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Usuario is the account row without the password hash.
type Usuario struct {
	ID        int       `json:"id" db:"id"`
	Nombres   string    `json:"nombres" db:"nombres"`
	Apellidos string    `json:"apellidos" db:"apellidos"`
	Email     string    `json:"email" db:"email"`
	Pais      string    `json:"pais" db:"pais"`
	CreatedAt time.Time `json:"-" db:"created_at"`
}

// UserInfo is the slimmed-down shape embedded in auth and session
// responses: {"pais": ..., "nombres": ...}.
type UserInfo struct {
	Pais    string `json:"pais"`
	Nombres string `json:"nombres"`
}

type AuthResponse struct {
	Message string   `json:"message"`
	User    UserInfo `json:"user"`
}

type SessionResponse struct {
	LoggedIn bool      `json:"logged_in"`
	User     *UserInfo `json:"user,omitempty"`
}

// Report types

type InformeRequest struct {
	IMO string `json:"imo"`
}

// InformeResponse mirrors the generation endpoint body: the report text
// and, when the vessel position was resolved, its [lat, lng] pair.
// VesselName never goes over the wire; it rides along so the publisher
// can enrich the archive event.
type InformeResponse struct {
	Reporte     string      `json:"reporte"`
	Coordenadas *[2]float64 `json:"coordenadas"`
	VesselName  string      `json:"-"`
}

// InformeRecord is one archived report, served by the history endpoint.
type InformeRecord struct {
	ID          string      `json:"id" db:"id"`
	UserID      *int        `json:"-" db:"user_id"`
	IMO         string      `json:"imo" db:"imo"`
	Barco       string      `json:"barco" db:"vessel_name"`
	Reporte     string      `json:"reporte" db:"reporte"`
	Lat         *float64    `json:"-" db:"lat"`
	Lng         *float64    `json:"-" db:"lng"`
	Coordenadas *[2]float64 `json:"coordenadas"`
	Fecha       time.Time   `json:"fecha" db:"generated_at"`
	DurationMS  int64       `json:"-" db:"duration_ms"`
}

// Weather types

// PuertoClima is one entry of the /api/clima/{pais} response.
type PuertoClima struct {
	Puerto    string  `json:"puerto"`
	Condicion string  `json:"condicion"`
	VientoKPH float64 `json:"viento_kph"`
}
