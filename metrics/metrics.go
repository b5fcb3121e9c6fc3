// Package metrics exports run progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/perfgo/e2erun/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Recorder is an engine.Observer backed by its own registry.
type Recorder struct {
	registry *prometheus.Registry

	attempts   *prometheus.CounterVec
	results    *prometheus.CounterVec
	passes     prometheus.Counter
	lastFailed prometheus.Gauge
}

var _ engine.Observer = (*Recorder)(nil)

func NewRecorder(browser string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"browser": browser}

	return &Recorder{
		registry: reg,
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "e2erun",
			Name:        "attempts_total",
			Help:        "Test attempts started.",
			ConstLabels: labels,
		}, []string{"test"}),
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "e2erun",
			Name:        "test_results_total",
			Help:        "Test verdicts by outcome.",
			ConstLabels: labels,
		}, []string{"test", "verdict"}),
		passes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "e2erun",
			Name:        "passes_total",
			Help:        "Completed passes over the test plan.",
			ConstLabels: labels,
		}),
		lastFailed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "e2erun",
			Name:        "last_pass_failed_tests",
			Help:        "Failed tests in the most recent pass.",
			ConstLabels: labels,
		}),
	}
}

func (r *Recorder) AttemptStarted(test string, _ int) {
	r.attempts.WithLabelValues(test).Inc()
}

func (r *Recorder) TestFinished(test string, v engine.Verdict, _ int, _ *engine.Failure) {
	r.results.WithLabelValues(test, v.String()).Inc()
}

func (r *Recorder) PassFinished(res engine.RunResult) {
	r.passes.Inc()
	r.lastFailed.Set(float64(len(res.Failed)))
}

// Handler serves the recorder's registry in the exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Serve exposes /metrics on addr until ctx is done and returns the bound
// address.
func (r *Recorder) Serve(ctx context.Context, logger zerolog.Logger, addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Metrics server shutdown")
		}
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	return ln.Addr().String(), nil
}
