// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "groupsnap"

// Registry is the private registry all collectors register with.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// ImagesUploaded counts image records created by uploads.
	ImagesUploaded = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "images_uploaded_total",
		Help:      "Images stored by upload requests.",
	})

	// UploadFileFailures counts files dropped from an otherwise accepted upload.
	UploadFileFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_file_failures_total",
		Help:      "Files dropped during upload, by stage.",
	}, []string{"stage"})

	// ImagesDeleted counts image records removed, by cause.
	ImagesDeleted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "images_deleted_total",
		Help:      "Image records removed, by cause.",
	}, []string{"cause"})

	// Broadcasts counts fan-out attempts by event and result.
	Broadcasts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcasts_total",
		Help:      "Realtime broadcasts, by event and result.",
	}, []string{"event", "result"})

	// WSConnections is the number of open realtime connections.
	WSConnections = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connections",
		Help:      "Open realtime connections.",
	})

	// OrphanSweeps counts sweeper runs by result.
	OrphanSweeps = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orphan_sweeps_total",
		Help:      "Orphan sweeper runs, by result.",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
