package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nao1215/placerank/internal/progress"
	"github.com/nao1215/placerank/internal/queue"
)

var (
	inFlightDesc = prometheus.NewDesc(
		namespace+"_crawls_in_progress",
		"Crawls currently running by pipeline stage",
		[]string{"stage"},
		nil,
	)
	queueReadyDesc = prometheus.NewDesc(
		namespace+"_queue_jobs",
		"Ready and delayed jobs by type",
		[]string{"type"},
		nil,
	)
	queueActiveDesc = prometheus.NewDesc(
		namespace+"_queue_active_jobs",
		"Dequeued jobs that are still running by type",
		[]string{"type"},
		nil,
	)
	queueFailedDesc = prometheus.NewDesc(
		namespace+"_queue_failed_jobs",
		"Jobs kept in the failed list by type",
		[]string{"type"},
		nil,
	)
)

// StateCollector reads running crawls and queue depths on each scrape.
type StateCollector struct {
	progress *progress.Store
	backend  queue.Backend
	logger   *slog.Logger
}

// Describe sends the metric descriptors to the channel.
func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- inFlightDesc
	ch <- queueReadyDesc
	ch <- queueActiveDesc
	ch <- queueFailedDesc
}

// Collect emits the current state as gauges.
func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	if c.progress != nil {
		stages := make(map[string]int)
		for _, e := range c.progress.List() {
			stages[e.Stage]++
		}
		for stage, n := range stages {
			ch <- prometheus.MustNewConstMetric(inFlightDesc, prometheus.GaugeValue, float64(n), stage)
		}
	}

	if c.backend == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, t := range queue.Types {
		n, err := c.backend.Len(ctx, t)
		if err != nil {
			c.logger.Error("failed to collect queue length", "type", t, "error", err)
			continue
		}
		ch <- prometheus.MustNewConstMetric(queueReadyDesc, prometheus.GaugeValue, float64(n), string(t))

		active, err := c.backend.Active(ctx, t)
		if err != nil {
			c.logger.Error("failed to collect active jobs", "type", t, "error", err)
			continue
		}
		ch <- prometheus.MustNewConstMetric(queueActiveDesc, prometheus.GaugeValue, float64(active), string(t))

		failed, err := c.backend.Failed(ctx, t)
		if err != nil {
			c.logger.Error("failed to collect failed jobs", "type", t, "error", err)
			continue
		}
		ch <- prometheus.MustNewConstMetric(queueFailedDesc, prometheus.GaugeValue, float64(len(failed)), string(t))
	}
}
