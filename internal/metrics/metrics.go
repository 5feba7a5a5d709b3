// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "magazine_http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "magazine_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	ContributionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "magazine_contribution_transitions_total",
		Help: "Contribution lifecycle transitions by action.",
	}, []string{"action"})

	Reactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "magazine_reactions_total",
		Help: "Reaction counter updates by target, counter and outcome.",
	}, []string{"target", "counter", "outcome"})

	UploadedFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "magazine_uploaded_files_total",
		Help: "Files accepted into asset storage.",
	})

	ArchiveExports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "magazine_archive_exports_total",
		Help: "Archive exports by result.",
	}, []string{"result"})

	MailDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "magazine_mail_deliveries_total",
		Help: "Outbound mail attempts by template and result.",
	}, []string{"template", "result"})
)
