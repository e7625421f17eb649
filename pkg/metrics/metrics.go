// Package metrics defines the Prometheus metric collectors for the pipeline
// and exposes an HTTP handler for scraping during long builds.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	ArchivesListedTotal     *prometheus.CounterVec
	ArchivesDownloadedTotal *prometheus.CounterVec
	ArchiveRetriesTotal     prometheus.Counter
	DownloadBytesTotal      prometheus.Counter
	EntriesExtractedTotal   *prometheus.CounterVec
	EntriesSkippedTotal     *prometheus.CounterVec
	DocsParsedTotal         *prometheus.CounterVec
	DocsSkippedTotal        *prometheus.CounterVec
	DocsIndexedTotal        prometheus.Counter
	SegmentFlushesTotal     prometheus.Counter
	SegmentMergesTotal      prometheus.Counter
	IngestQueueDepth        prometheus.Gauge
	QueryDuration           prometheus.Histogram
	QueryMatches            prometheus.Histogram
}

// New creates and registers all collectors on the given registerer. Passing
// nil registers on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ArchivesListedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dilarxiv_archives_listed_total",
				Help: "Archives discovered on the open-data server, by fond.",
			},
			[]string{"fond"},
		),
		ArchivesDownloadedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dilarxiv_archives_downloaded_total",
				Help: "Archive downloads by fond and outcome (done, skipped, failed).",
			},
			[]string{"fond", "outcome"},
		),
		ArchiveRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dilarxiv_archive_retries_total",
				Help: "Download attempts beyond the first.",
			},
		),
		DownloadBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dilarxiv_download_bytes_total",
				Help: "Bytes written to local archive files.",
			},
		),
		EntriesExtractedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dilarxiv_entries_extracted_total",
				Help: "Leaf files written during extraction, by fond.",
			},
			[]string{"fond"},
		),
		EntriesSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dilarxiv_entries_skipped_total",
				Help: "Corrupt or unsupported archive entries skipped, by fond.",
			},
			[]string{"fond"},
		),
		DocsParsedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dilarxiv_docs_parsed_total",
				Help: "Documents parsed successfully, by fond.",
			},
			[]string{"fond"},
		),
		DocsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dilarxiv_docs_skipped_total",
				Help: "Documents skipped during parsing, by fond.",
			},
			[]string{"fond"},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dilarxiv_docs_indexed_total",
				Help: "Documents written to the index.",
			},
		),
		SegmentFlushesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dilarxiv_segment_flushes_total",
				Help: "Memory-budget segment flushes.",
			},
		),
		SegmentMergesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dilarxiv_segment_merges_total",
				Help: "Segment merge operations.",
			},
		),
		IngestQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dilarxiv_ingest_queue_depth",
				Help: "Documents waiting between parse workers and the index builder.",
			},
		),
		QueryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dilarxiv_query_duration_seconds",
				Help:    "Query evaluation latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		QueryMatches: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dilarxiv_query_matches",
				Help:    "Matching documents per query.",
				Buckets: prometheus.ExponentialBuckets(1, 10, 8),
			},
		),
	}
	reg.MustRegister(
		m.ArchivesListedTotal,
		m.ArchivesDownloadedTotal,
		m.ArchiveRetriesTotal,
		m.DownloadBytesTotal,
		m.EntriesExtractedTotal,
		m.EntriesSkippedTotal,
		m.DocsParsedTotal,
		m.DocsSkippedTotal,
		m.DocsIndexedTotal,
		m.SegmentFlushesTotal,
		m.SegmentMergesTotal,
		m.IngestQueueDepth,
		m.QueryDuration,
		m.QueryMatches,
	)
	return m
}
