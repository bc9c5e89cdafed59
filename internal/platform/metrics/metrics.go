// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

// Package metrics defines the Prometheus instruments for the synchronization
// engine and exposes them through a registry-backed HTTP handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Firehose metrics
	FirehoseFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skymirror_firehose_frames_total",
			Help: "Firehose frames received, by frame type",
		},
		[]string{"type"},
	)

	FirehoseReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skymirror_firehose_reconnects_total",
			Help: "Times the commit-stream connection was re-established",
		},
	)

	// Ingest metrics
	BlocksIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skymirror_blocks_ingested_total",
			Help: "Block rows written, by ingest source and direction",
		},
		[]string{"source", "direction"},
	)

	BlocksPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skymirror_blocks_pruned_total",
			Help: "Stale block rows deleted by reconciliation",
		},
	)

	// Reconciler metrics
	ReconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skymirror_reconcile_duration_seconds",
			Help:    "Duration of reconciliation passes, by pass kind",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"pass"},
	)

	// Publisher metrics
	ListItemsAddedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skymirror_list_items_added_total",
			Help: "List-item records created on the moderation list",
		},
	)

	ListItemsRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skymirror_list_items_removed_total",
			Help: "List-item records deleted from the moderation list",
		},
	)

	// Governor metrics
	GovernorThrottleSeconds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skymirror_governor_throttle_seconds_total",
			Help: "Cumulative time spent sleeping inside the rate governor",
		},
	)

	GovernorRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skymirror_governor_retries_total",
			Help: "Rate-limited calls retried by the governor",
		},
	)
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		FirehoseFramesTotal,
		FirehoseReconnectsTotal,
		BlocksIngestedTotal,
		BlocksPrunedTotal,
		ReconcileDuration,
		ListItemsAddedTotal,
		ListItemsRemovedTotal,
		GovernorThrottleSeconds,
		GovernorRetriesTotal,
	)
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
