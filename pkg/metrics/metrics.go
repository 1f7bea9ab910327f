// Package metrics exposes prometheus counters for the video pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEventsTotal counts inbound webhook events by kind and outcome
	// (processed, ignored, rejected, malformed, failed).
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipforge_webhook_events_total",
		Help: "Total number of webhook events received, by kind and outcome",
	}, []string{"kind", "outcome"})

	// UploadSessionsTotal counts upload sessions issued to clients.
	UploadSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipforge_upload_sessions_total",
		Help: "Total number of direct upload sessions created",
	})

	// ArchiveJobsTotal counts rendition archive jobs by status.
	ArchiveJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipforge_archive_jobs_total",
		Help: "Total number of rendition archive jobs, by status",
	}, []string{"status"})
)
