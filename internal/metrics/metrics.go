// Package metrics defines the Prometheus instruments shared by the
// scheduler and workers. The API service exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchesScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_searches_scheduled_total",
		Help: "Search scheduling decisions by outcome reason",
	}, []string{"reason"})

	SearchRequestsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_search_requests_processed_total",
		Help: "Search requests processed by the search worker, by result",
	}, []string{"result"})

	JobsDiscovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_jobs_discovered_total",
		Help: "Relevant jobs persisted as discoveries, by source kind",
	}, []string{"source"})

	ApplyRequestsFannedOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_apply_requests_fanned_out_total",
		Help: "Apply requests enqueued by search-result fan-out",
	})

	ApplicationsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_applications_submitted_total",
		Help: "Application submissions by outcome",
	}, []string{"outcome"})

	ApplySkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_apply_skips_total",
		Help: "Apply requests completed without submission, by reason",
	}, []string{"reason"})

	ProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_message_processing_seconds",
		Help:    "Wall-clock message processing time per worker",
		Buckets: prometheus.DefBuckets,
	}, []string{"worker"})

	AICalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_ai_calls_total",
		Help: "AI text-generation calls by purpose and outcome",
	}, []string{"purpose", "outcome"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_queue_depth",
		Help: "Approximate number of messages per queue",
	}, []string{"queue"})

	SchedulerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_scheduler_errors_total",
		Help: "Per-user scheduling failures that did not abort the tick",
	})
)
