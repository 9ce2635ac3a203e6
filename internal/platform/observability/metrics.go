package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrledger_batches_total",
		Help: "The total number of ingestion batches by outcome",
	}, []string{"outcome"})

	RecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrledger_records_total",
		Help: "The total number of uploaded records by outcome",
	}, []string{"outcome"})

	DuplicatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrledger_duplicates_total",
		Help: "The total number of rejected duplicate records by reason",
	}, []string{"reason"})

	LotsExported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrledger_lots_exported_total",
		Help: "The total number of lot export files written",
	})

	ExportBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrledger_export_bytes_total",
		Help: "Total bytes written to lot export files",
	})

	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qrledger_batch_duration_seconds",
		Help:    "Duration of one ingestion batch end to end",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	StoreCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qrledger_store_check_duration_seconds",
		Help:    "Duration of the chunked duplicate check against the identifier store",
		Buckets: prometheus.DefBuckets,
	})

	IdentifierConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrledger_identifier_conflicts_total",
		Help: "Identifier inserts skipped by the unique constraint (concurrent batch races)",
	})
)

// Batch outcome label values.
const (
	OutcomeSuccess       = "success"
	OutcomeAllDuplicates = "all_duplicates"
	OutcomeError         = "error"
)

// Record outcome label values.
const (
	RecordAccepted = "accepted"
	RecordDropped  = "dropped"
)
