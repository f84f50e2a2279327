package client

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/slog"

	"assistsync/internal/domain/health"
	"assistsync/internal/domain/queue"
)

const metricsNamespace = "assistsync"

// StatsSource снимок состояния движка для метрик
type StatsSource interface {
	QueueStats() map[string]queue.Stats
	Health() map[string]health.CollectionHealth
}

// Collector отдает состояние очереди и предохранителей в Prometheus.
// Значения читаются при каждом сборе, отдельного учета нет.
type Collector struct {
	source StatsSource

	queueDepth   *prometheus.Desc
	queueOldest  *prometheus.Desc
	queueDead    *prometheus.Desc
	breakerState *prometheus.Desc
	breakerFails *prometheus.Desc
}

func NewCollector(source StatsSource) *Collector {
	labels := []string{"collection"}
	return &Collector{
		source: source,
		queueDepth: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "queue", "depth"),
			"Pending push queue entries.", labels, nil),
		queueOldest: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "queue", "oldest_pending_seconds"),
			"Age of the oldest pending push queue entry.", labels, nil),
		queueDead: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "queue", "dead_entries"),
			"Push queue entries that exhausted their retries.", labels, nil),
		breakerState: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "breaker", "state"),
			"Circuit breaker state: 0 closed, 1 half-open, 2 open.", labels, nil),
		breakerFails: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "breaker", "consecutive_failures"),
			"Consecutive sync failures of a collection.", labels, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepth
	ch <- c.queueOldest
	ch <- c.queueDead
	ch <- c.breakerState
	ch <- c.breakerFails
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, s := range c.source.QueueStats() {
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(s.Depth), name)
		ch <- prometheus.MustNewConstMetric(c.queueOldest, prometheus.GaugeValue, s.OldestPendingAge.Seconds(), name)
		ch <- prometheus.MustNewConstMetric(c.queueDead, prometheus.GaugeValue, float64(s.Dead), name)
	}
	for name, h := range c.source.Health() {
		ch <- prometheus.MustNewConstMetric(c.breakerState, prometheus.GaugeValue, breakerValue(h.State), name)
		ch <- prometheus.MustNewConstMetric(c.breakerFails, prometheus.GaugeValue, float64(h.ConsecutiveFailures), name)
	}
}

func breakerValue(s health.State) float64 {
	switch s {
	case health.HalfOpen:
		return 1
	case health.Open:
		return 2
	}
	return 0
}

// ServeMetrics отдает /metrics до отмены ctx
func ServeMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *slog.Logger) error {
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("Метрики доступны", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
