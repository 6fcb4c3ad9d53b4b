// File: internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Package-level collectors for the scan engine. Registered once in init so
// every component can record without plumbing a registry around.
var (
	ScansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verdict_scans_total",
		Help: "Total number of single-URL scans by outcome.",
	}, []string{"outcome"})

	ReputationLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verdict_reputation_lookups_total",
		Help: "Reputation lookups by provider and availability.",
	}, []string{"provider", "available"})

	CacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verdict_reputation_cache_requests_total",
		Help: "Verdict cache requests by result (hit, miss, error).",
	}, []string{"result"})

	BatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "verdict_batch_processing_seconds",
		Help:    "Wall-clock duration of batch scans.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	BatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "verdict_batch_size_urls",
		Help:    "Number of URLs per batch request.",
		Buckets: []float64{1, 2, 5, 10, 50, 100, 500, 1000},
	})
)

func init() {
	prometheus.MustRegister(ScansTotal, ReputationLookups, CacheRequests, BatchDuration, BatchSize)
}
