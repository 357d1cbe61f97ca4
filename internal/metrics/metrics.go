// Package metrics exposes scanner counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/cryptoscan/internal/logger"
)

// Registry holds every metric the scanner records. A nil *Registry is valid
// and records nothing.
type Registry struct {
	reg    *prometheus.Registry
	health func(context.Context) error

	Cycles           *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	Tier1Passed      prometheus.Counter
	Tier2Passed      prometheus.Counter
	Rejections       *prometheus.CounterVec
	Suppressed       prometheus.Counter
	Alerts           *prometheus.CounterVec
	ProviderRequests *prometheus.CounterVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptoscan_cycles_total",
				Help: "Scan cycles by result",
			},
			[]string{"result"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cryptoscan_cycle_duration_seconds",
				Help:    "Duration of a full scan cycle",
				Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		Tier1Passed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cryptoscan_tier1_passed_total",
				Help: "Assets accepted by the Tier 1 filter",
			},
		),
		Tier2Passed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cryptoscan_tier2_passed_total",
				Help: "Assets accepted by the Tier 2 scorer",
			},
		),
		Rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptoscan_rejections_total",
				Help: "Assets rejected by stage and reason",
			},
			[]string{"stage", "reason"},
		),
		Suppressed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cryptoscan_suppressed_total",
				Help: "Candidates skipped by duplicate suppression",
			},
		),
		Alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptoscan_alerts_total",
				Help: "Alerts by delivery result",
			},
			[]string{"result"},
		),
		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptoscan_provider_requests_total",
				Help: "Outbound provider requests by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
	}
	r.reg.MustRegister(
		r.Cycles, r.CycleDuration, r.Tier1Passed, r.Tier2Passed,
		r.Rejections, r.Suppressed, r.Alerts, r.ProviderRequests,
	)
	return r
}

// Gatherer returns the underlying registry for scraping or tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) ObserveCycle(err error, d time.Duration) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.Cycles.WithLabelValues(result).Inc()
	r.CycleDuration.Observe(d.Seconds())
}

func (r *Registry) Reject(stage, reason string) {
	if r == nil {
		return
	}
	r.Rejections.WithLabelValues(stage, reason).Inc()
}

func (r *Registry) AddTier1(n int) {
	if r == nil {
		return
	}
	r.Tier1Passed.Add(float64(n))
}

func (r *Registry) AddTier2(n int) {
	if r == nil {
		return
	}
	r.Tier2Passed.Add(float64(n))
}

func (r *Registry) IncSuppressed() {
	if r == nil {
		return
	}
	r.Suppressed.Inc()
}

func (r *Registry) Alert(result string) {
	if r == nil {
		return
	}
	r.Alerts.WithLabelValues(result).Inc()
}

// ProviderRequest satisfies httpclient.Observer.
func (r *Registry) ProviderRequest(provider, outcome string) {
	if r == nil {
		return
	}
	r.ProviderRequests.WithLabelValues(provider, outcome).Inc()
}

// SetHealthCheck makes /healthz report 503 while check fails.
func (r *Registry) SetHealthCheck(check func(context.Context) error) {
	r.health = check
}

// Router serves /metrics and /healthz.
func (r *Registry) Router() *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if r.health != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := r.health(ctx); err != nil {
				logger.Warn("Health check failed: %v", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unhealthy"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return router
}

// Serve runs the metrics HTTP server until ctx is cancelled.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown: %v", err)
		}
	}()
	logger.Info("Metrics server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
