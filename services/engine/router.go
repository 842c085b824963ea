package engine

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"kioskd/pkg/db"
)

// Ops exposes the operational HTTP surface for the engine: configuration
// management, receipt retrieval, health probes, and Prometheus metrics.
type Ops struct {
	engine   *Engine
	orm      *gorm.DB
	pool     *pgxpool.Pool
	registry *prometheus.Registry
}

// NewOps wires the HTTP layer around a running engine. The ORM is
// required for configuration writes; the pool backs the readiness
// probe and may be nil in tests.
func NewOps(eng *Engine, orm *gorm.DB, pool *pgxpool.Pool, registry *prometheus.Registry) (*Ops, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	return &Ops{engine: eng, orm: orm, pool: pool, registry: registry}, nil
}

// Routes constructs the chi router containing all ops endpoints.
func (o *Ops) Routes() (http.Handler, error) {
	if o == nil {
		return nil, errors.New("nil ops")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", o.handleHealthz)
	r.Get("/readyz", o.handleReadyz)
	if o.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/configurations/{machineID}", o.handleGetConfiguration)
		r.Post("/configurations", o.handleUpsertConfiguration)
		r.Get("/receipts/{receiptID}/url", o.handleReceiptURL)
	})

	return r, nil
}

func (o *Ops) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (o *Ops) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if o.pool != nil {
		ctx, cancel := withTimeout(r.Context())
		defer cancel()
		if err := db.Ping(ctx, o.pool); err != nil {
			respondError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
