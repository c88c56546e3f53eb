package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	FileOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "files_operations_total",
		Help: "File operations processed, by operation and outcome.",
	}, []string{"operation", "outcome"})

	FileOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "files_operation_duration_seconds",
		Help:    "End-to-end duration of file operations.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"operation"})

	BatchEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "files_batch_entries_total",
		Help: "Individual files handled inside batch operations, by operation and outcome.",
	}, []string{"operation", "outcome"})

	MultimodalDisabledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "files_multimodal_disabled_total",
		Help: "Requests rejected because the multimodal capability is disabled for the use case.",
	})

	CapabilityCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "files_capability_cache_lookups_total",
		Help: "Capability cache lookups, by result.",
	}, []string{"result"})

	UploadNotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "files_upload_notifications_total",
		Help: "Upload notification messages processed, by outcome.",
	}, []string{"outcome"})
)
