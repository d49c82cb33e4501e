package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"chancai/internal/config"
	"chancai/internal/mq"
	"chancai/internal/store"
	"chancai/internal/types"
	"chancai/internal/version"
	"chancai/internal/weather"
	"chancai/internal/web"
)

// Generator produces the vessel report for one request. The concrete
// implementation lives in the informe package; the indirection keeps
// handler tests free of live upstreams.
type Generator interface {
	Generate(ctx context.Context, imo, userName string) (*types.InformeResponse, error)
}

type Server struct {
	cfg    config.APIConfig
	store  *store.Store
	mq     *mq.Client
	engine Generator
	clima  *weather.Service
	rdb    *redis.Client
	hub    *Hub
	logger *slog.Logger
	server *http.Server
}

// NewServer wires the HTTP surface. mqClient and rdb may be nil: without
// a broker no events are published and the live feed stays silent,
// without Redis report rate limiting is disabled.
func NewServer(cfg config.APIConfig, st *store.Store, mqClient *mq.Client, engine Generator, climaSvc *weather.Service, rdb *redis.Client, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		store:  st,
		mq:     mqClient,
		engine: engine,
		clima:  climaSvc,
		rdb:    rdb,
		hub:    NewHub(logger),
		logger: logger,
	}
}

func (s *Server) routes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	// Generation fans out to several upstreams plus the model; the
	// ceiling has to cover the slowest path.
	router.Use(middleware.Timeout(120 * time.Second))
	router.Use(otelhttp.NewMiddleware("chancai-api"))
	router.Use(corsMiddleware)

	router.Get(s.cfg.HealthLivenessEndpoint, s.handleHealth)
	router.Get(s.cfg.HealthReadyEndpoint, s.handleReady)
	router.Get("/version", version.HandleVersion)
	router.Handle("/metrics", promhttp.Handler())

	// Live report feed (public, no auth)
	router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.hub.ServeWS(w, r)
	})

	router.Route("/api", func(r chi.Router) {
		r.Use(s.optionalAuthMiddleware)

		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Get("/session", s.handleSession)

		r.Get("/clima/{pais}", s.handleClima)

		r.Get("/generar-informe", s.handleGenerarInforme)
		r.Post("/generar-informe", s.handleGenerarInforme)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/informes", s.handleListInformes)
		})
	})

	// Embedded frontend at the root, everything else above wins first.
	router.Handle("/*", web.Handler())

	return router
}

func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.routes(),
	}

	// Bridge archived-report fanout messages to WebSocket clients.
	if s.mq != nil {
		go func() {
			s.logger.Info("starting report fanout subscriber", "exchange", types.ReportGeneratedFanout)
			if err := s.mq.SubscribeFanout(ctx, types.ReportGeneratedFanout, func(_ context.Context, body []byte) {
				s.hub.Broadcast(body)
			}); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("fanout subscriber exited", "err", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", s.cfg.HTTPAddr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.DB().PingContext(ctx); err != nil {
		s.logger.Warn("readiness probe failed", "err", err)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeJSONError answers with an {"error": ...} body; the report and
// weather endpoints use it.
func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, map[string]string{"error": message}, status)
}

// writeJSONMessage answers with a {"message": ...} body; the auth
// endpoints use it for both outcomes.
func writeJSONMessage(w http.ResponseWriter, message string, status int) {
	writeJSON(w, map[string]string{"message": message}, status)
}
