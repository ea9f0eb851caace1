// Package metrics exposes Prometheus instruments for the cluster engine.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

type Metrics struct {
	TopologyOperationsTotal *prometheus.CounterVec
	TopologyDuration        *prometheus.HistogramVec
	ClusteringRunsTotal     *prometheus.CounterVec
	ClusteringDuration      prometheus.Histogram
	ClusteringDroppedPoints prometheus.Counter
	HealthStatusClusters    *prometheus.GaugeVec
	LockContentionTotal     prometheus.Counter
	EventPublishFailures    prometheus.Counter
	EventWriteFailures      prometheus.Counter
}

// Get returns the process-wide metrics, registering them on first use.
//
// Metrics:
//   - cluster_topology_operations_total{operation,result}
//   - cluster_topology_duration_seconds{operation}
//   - cluster_clustering_runs_total{result}
//   - cluster_clustering_duration_seconds
//   - cluster_clustering_dropped_points_total
//   - cluster_health_status_clusters{status}
//   - cluster_lock_contention_total
//   - cluster_event_publish_failures_total
//   - cluster_event_write_failures_total
func Get() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			TopologyOperationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cluster_topology_operations_total",
					Help: "Topology mutations by operation and result",
				},
				[]string{"operation", "result"}, // result: success, refused, failed
			),
			TopologyDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "cluster_topology_duration_seconds",
					Help:    "Duration of topology mutations",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"operation"},
			),
			ClusteringRunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cluster_clustering_runs_total",
					Help: "Content clustering runs by result",
				},
				[]string{"result"},
			),
			ClusteringDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "cluster_clustering_duration_seconds",
				Help:    "Duration of content clustering runs including vector scroll",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			}),
			ClusteringDroppedPoints: promauto.NewCounter(prometheus.CounterOpts{
				Name: "cluster_clustering_dropped_points_total",
				Help: "Vectors excluded for dimension mismatch or dropped with undersized clusters",
			}),
			HealthStatusClusters: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "cluster_health_status_clusters",
					Help: "Number of clusters per health status in the last global analysis",
				},
				[]string{"status"},
			),
			LockContentionTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "cluster_lock_contention_total",
				Help: "Topology mutations rejected because the user lock was held",
			}),
			EventPublishFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "cluster_event_publish_failures_total",
				Help: "Cluster events that could not be published to the bus",
			}),
			EventWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "cluster_event_write_failures_total",
				Help: "Cluster events that could not be written to the audit log",
			}),
		}
	})
	return globalMetrics
}

// ObserveTopology records one topology operation.
func (m *Metrics) ObserveTopology(operation, result string, started time.Time) {
	m.TopologyOperationsTotal.WithLabelValues(operation, result).Inc()
	m.TopologyDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}
