package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"

	"chancai/internal/config"
	"chancai/internal/mq"
	"chancai/internal/store"
	"chancai/internal/types"
	"chancai/internal/weather"
)

var (
	reportsArchived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reports_archived_total",
		Help: "Number of generated reports persisted to the archive",
	})
	reportArchiveFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "report_archive_failed_total",
		Help: "Number of archive attempts that failed",
	})
	weatherRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "weather_refreshes_total",
		Help: "Number of completed weather cache refresh cycles",
	})
	portsRefreshed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ports_refreshed_total",
		Help: "Number of port observations fetched across refresh cycles",
	})
)

func init() {
	prometheus.MustRegister(reportsArchived, reportArchiveFailed, weatherRefreshes, portsRefreshed)
}

// Worker archives generated reports off the queue and keeps the port
// weather cache warm.
type Worker struct {
	cfg    config.WorkerConfig
	store  *store.Store
	mq     *mq.Client
	clima  *weather.Service
	logger *slog.Logger

	audit     *slog.Logger
	auditFile *os.File
}

// New builds the worker. clima may be nil, which disables the refresh
// loop. An empty AuditLogPath disables the audit trail.
func New(cfg config.WorkerConfig, st *store.Store, mqClient *mq.Client, clima *weather.Service, logger *slog.Logger) (*Worker, error) {
	w := &Worker{
		cfg:    cfg,
		store:  st,
		mq:     mqClient,
		clima:  clima,
		logger: logger,
	}

	if cfg.AuditLogPath != "" {
		if dir := filepath.Dir(cfg.AuditLogPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create audit log dir: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.AuditLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		w.auditFile = f
		w.audit = slog.New(slog.NewJSONHandler(f, nil))
	}

	return w, nil
}

func (w *Worker) Close() error {
	if w.auditFile != nil {
		return w.auditFile.Close()
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() { errCh <- w.runArchiveConsumer(ctx) }()
	if w.clima != nil {
		go func() { errCh <- w.runWeatherRefresher(ctx) }()
	}

	if w.cfg.MetricsAddr != "" {
		go w.runMetricsServer(ctx)
	}

	select {
	case <-ctx.Done():
		w.logger.Info("worker shutting down")
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

func (w *Worker) runMetricsServer(ctx context.Context) {
	srv := &http.Server{
		Addr:    w.cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	w.logger.Info("metrics server listening", "addr", w.cfg.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		w.logger.Error("metrics server error", "err", err)
	}
}

func (w *Worker) runArchiveConsumer(ctx context.Context) error {
	opts := mq.ConsumeOptions{
		QueueOptions: mq.QueueOptions{
			Durable:     true,
			DLQEnabled:  w.cfg.QueueDLQEnabled,
			DLQTTL:      w.cfg.QueueDLQMessageTTL,
			Prefetch:    w.cfg.Prefetch,
			ContentType: "application/json",
		},
		HandlerTimeout:   30 * time.Second,
		DeadLetterOnFail: true,
	}

	handler := func(ctx context.Context, d amqp.Delivery) error {
		return w.archiveReport(ctx, d.Body)
	}

	w.logger.Info("starting report archive consumer", "queue", types.ReportGenerated)
	return w.mq.Consume(ctx, types.ReportGenerated, opts, handler)
}

func (w *Worker) archiveReport(ctx context.Context, body []byte) error {
	var ev types.ReportGeneratedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("decode report event: %w", err)
	}

	if err := w.store.InsertInforme(ctx, ev); err != nil {
		reportArchiveFailed.Inc()
		return err
	}

	reportsArchived.Inc()
	w.auditArchive(ev)
	w.logger.Info("report archived", "reportId", ev.ReportID, "imo", ev.IMO)
	return nil
}

// auditArchive appends one line per archived report to the audit trail.
func (w *Worker) auditArchive(ev types.ReportGeneratedEvent) {
	if w.audit == nil {
		return
	}

	attrs := []any{
		"reportId", ev.ReportID,
		"imo", ev.IMO,
		"addressee", ev.Addressee,
		"durationMs", ev.DurationMS,
		"generatedAt", ev.GeneratedAt.Format(time.RFC3339),
	}
	if ev.VesselName != "" {
		attrs = append(attrs, "vessel", ev.VesselName)
	}
	if ev.UserID != nil {
		attrs = append(attrs, "userId", *ev.UserID)
	}
	w.audit.Info("informe archivado", attrs...)
}

func (w *Worker) runWeatherRefresher(ctx context.Context) error {
	// Warm the cache right away so the first page load is served hot.
	w.refreshWeather(ctx)

	ticker := time.NewTicker(w.cfg.WeatherRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.refreshWeather(ctx)
		}
	}
}

func (w *Worker) refreshWeather(ctx context.Context) {
	start := time.Now()
	count := w.clima.Refresh(ctx)
	if ctx.Err() != nil {
		return
	}

	weatherRefreshes.Inc()
	portsRefreshed.Add(float64(count))
	w.logger.Info("weather cache refreshed", "ports", count, "durationMs", time.Since(start).Milliseconds())
}
