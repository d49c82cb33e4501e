package types

import "time"

// Queue and exchange names shared by the API publisher and the worker.
const (
	// ReportGenerated is the durable queue the archiver consumes.
	ReportGenerated = "informe.generado"
	// ReportGeneratedFanout feeds every live subscriber (WebSocket hub).
	ReportGeneratedFanout = ReportGenerated + ".fanout"
)

// ReportGeneratedEvent is published once per successfully generated
// report. The archiver persists it; the fanout copy reaches WebSocket
// clients as-is.
type ReportGeneratedEvent struct {
	ReportID    string    `json:"reportId"`
	IMO         string    `json:"imo"`
	VesselName  string    `json:"vesselName,omitempty"`
	UserID      *int      `json:"userId,omitempty"`
	Addressee   string    `json:"addressee"`
	Lat         *float64  `json:"lat,omitempty"`
	Lng         *float64  `json:"lng,omitempty"`
	ReportText  string    `json:"reportText"`
	DurationMS  int64     `json:"durationMs"`
	GeneratedAt time.Time `json:"generatedAt"`
}
