package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"chancai/internal/informe"
	"chancai/internal/mq"
	"chancai/internal/telemetry"
	"chancai/internal/types"
)

var (
	reportsGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reports_generated_total",
		Help: "Number of reports generated and returned to callers",
	})
	reportFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "report_failures_total",
		Help: "Number of report requests that ended in an internal error",
	})
	reportDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "report_generation_seconds",
		Help:    "Wall time spent generating one report",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
	})
	reportsRateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reports_rate_limited_total",
		Help: "Number of report requests rejected by the rate limiter",
	})
)

func init() {
	prometheus.MustRegister(reportsGenerated, reportFailures, reportDuration, reportsRateLimited)
}

// handleGenerarInforme serves both verbs: GET takes an optional ?imo=
// query parameter and falls back to the configured default vessel, POST
// requires {"imo": ...} in the body.
func (s *Server) handleGenerarInforme(w http.ResponseWriter, r *http.Request) {
	var imo string
	if r.Method == http.MethodPost {
		var req types.InformeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "Falta el número IMO.", http.StatusBadRequest)
			return
		}
		imo = strings.TrimSpace(req.IMO)
		if imo == "" {
			writeJSONError(w, "Falta el número IMO.", http.StatusBadRequest)
			return
		}
	} else {
		imo = strings.TrimSpace(r.URL.Query().Get("imo"))
		if imo == "" {
			imo = s.cfg.DefaultIMO
		}
	}

	if !s.allowReportRequest(r) {
		reportsRateLimited.Inc()
		writeJSONError(w, "Demasiadas solicitudes. Inténtalo de nuevo en unos minutos.", http.StatusTooManyRequests)
		return
	}

	userName := informe.DefaultAddressee
	var userID *int
	if id := getUserIDFromContext(r.Context()); id != 0 {
		lookupCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		user, err := s.store.GetUserByID(lookupCtx, id)
		cancel()
		if err == nil {
			userName = user.Nombres
			uid := user.ID
			userID = &uid
		}
	}

	start := time.Now()
	resp, err := s.engine.Generate(r.Context(), imo, userName)
	if err != nil {
		if r.Context().Err() != nil {
			// Caller went away; nothing left to answer.
			return
		}
		s.logger.Error("report generation failed", "imo", imo, "err", err)
		reportFailures.Inc()
		writeJSONError(w, "Error interno del servidor.", http.StatusInternalServerError)
		return
	}
	duration := time.Since(start)

	reportsGenerated.Inc()
	reportDuration.Observe(duration.Seconds())
	s.logger.Info("report generated", "imo", imo, "durationMs", duration.Milliseconds(), "authenticated", userID != nil)

	s.publishReportEvent(r.Context(), imo, userID, userName, resp, duration)

	writeJSON(w, resp, http.StatusOK)
}

// publishReportEvent hands the report to the archive queue and the live
// fanout. Publishing is asynchronous and best-effort: the caller already
// has the report, a broker outage only costs the archive entry.
func (s *Server) publishReportEvent(ctx context.Context, imo string, userID *int, addressee string, resp *types.InformeResponse, duration time.Duration) {
	if s.mq == nil {
		return
	}

	ev := types.ReportGeneratedEvent{
		ReportID:    uuid.NewString(),
		IMO:         imo,
		VesselName:  resp.VesselName,
		UserID:      userID,
		Addressee:   addressee,
		ReportText:  resp.Reporte,
		DurationMS:  duration.Milliseconds(),
		GeneratedAt: time.Now().UTC(),
	}
	if resp.Coordenadas != nil {
		lat, lng := resp.Coordenadas[0], resp.Coordenadas[1]
		ev.Lat, ev.Lng = &lat, &lng
	}

	body, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("marshal report event failed", "reportId", ev.ReportID, "err", err)
		return
	}

	// Capture trace headers from the request before detaching.
	headers := telemetry.InjectAMQPContext(ctx, amqp.Table{})

	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		opts := mq.QueueOptions{
			Durable:     true,
			DLQEnabled:  s.cfg.QueueDLQEnabled,
			DLQTTL:      s.cfg.QueueDLQMessageTTL,
			ContentType: "application/json",
		}
		if err := s.mq.PublishWithRetry(pubCtx, types.ReportGenerated, body, opts, headers); err != nil {
			s.logger.Error("publish report event failed", "reportId", ev.ReportID, "err", err)
		}
		if err := s.mq.PublishToExchange(pubCtx, types.ReportGeneratedFanout, body); err != nil {
			s.logger.Error("publish report fanout failed", "reportId", ev.ReportID, "err", err)
		}
	}()
}
