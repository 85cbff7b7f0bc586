package models

import (
	"time"

	"github.com/aukilabs/quadrant/quadtree"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	worldLabel = "world"
)

var (
	worldCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "world_count",
		Help: "The number of worlds.",
	})

	worldCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "world_count_total",
		Help: "The total number of worlds.",
	})

	indexRebuildLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "index_rebuild_seconds",
		Help:    "The time to clear and repopulate a world index.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	indexEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "index_entries",
		Help: "The number of entries stored in a world index after its last rebuild.",
	}, []string{worldLabel})

	indexNodes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "index_nodes",
		Help: "The number of nodes of a world index.",
	}, []string{worldLabel})

	indexDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "index_depth",
		Help: "The depth of the deepest node of a world index.",
	}, []string{worldLabel})
)

func instrumentIncreaseWorldGauge() {
	worldCount.Inc()
}

func instrumentDecreaseWorldGauge() {
	worldCount.Dec()
}

func instrumentCountWorld() {
	worldCountTotal.Inc()
}

func instrumentIndexRebuild(world string, start time.Time, info quadtree.DebugInfo) {
	indexRebuildLatency.Observe(time.Since(start).Seconds())

	labels := prometheus.Labels{worldLabel: world}
	indexEntries.With(labels).Set(float64(info.EntryCount))
	indexNodes.With(labels).Set(float64(info.NodeCount))
	indexDepth.With(labels).Set(float64(info.Depth))
}

func deleteIndexMetrics(world string) {
	labels := prometheus.Labels{worldLabel: world}
	indexEntries.Delete(labels)
	indexNodes.Delete(labels)
	indexDepth.Delete(labels)
}
