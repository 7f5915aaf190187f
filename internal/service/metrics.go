package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "persona",
		Name:      "messages_processed_total",
		Help:      "Messages run through the persona pipeline.",
	})
	extractedSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "persona",
		Name:      "extracted_signals_total",
		Help:      "Valid trait signals returned by the extractor.",
	}, []string{"trait"})
	extractionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "persona",
		Name:      "extraction_failures_total",
		Help:      "Extraction calls that failed or returned unparseable output.",
	})
	traitUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "persona",
		Name:      "trait_updates_total",
		Help:      "Trait metric updates applied.",
	}, []string{"trait"})
	driftRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "persona",
		Name:      "drift_runs_total",
		Help:      "Drift prevention passes executed.",
	})
	driftPruned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "persona",
		Name:      "drift_pruned_traits_total",
		Help:      "Trait metrics deleted by drift prevention.",
	})
	snapshotsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "persona",
		Name:      "snapshots_created_total",
		Help:      "Persona snapshots persisted.",
	})
	snapshotCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "persona",
		Name:      "snapshot_cache_lookups_total",
		Help:      "Snapshot cache lookups by result.",
	}, []string{"result"})
	emotionsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "persona",
		Name:      "emotions_detected_total",
		Help:      "Classified emotions before hysteresis.",
	}, []string{"emotion"})
	repliesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "persona",
		Name:      "replies_total",
		Help:      "Mirror replies by source (llm or fallback) and fallback reason.",
	}, []string{"source", "reason"})
	generationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "persona",
		Name:      "generation_duration_seconds",
		Help:      "Latency of reply generation calls.",
		Buckets:   prometheus.DefBuckets,
	})
)

func recordReply(source, reason string) {
	repliesGenerated.WithLabelValues(source, reason).Inc()
}

func recordDrift(pruned int64) {
	driftRuns.Inc()
	if pruned > 0 {
		driftPruned.Add(float64(pruned))
	}
}
