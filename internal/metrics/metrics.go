// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

// Package metrics exposes Prometheus instrumentation for the ingestion
// pipeline and the HTTP layer. All collectors register on the default
// registry through promauto and are served at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upload pipeline metrics
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calldrop_uploads_total",
			Help: "Total number of upload attempts by terminal outcome",
		},
		[]string{"outcome"},
	)

	UploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calldrop_upload_duration_seconds",
			Help:    "End-to-end upload processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	UploadAudioBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "calldrop_upload_audio_bytes",
			Help:    "Audio payload size of accepted uploads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB .. 256MiB
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calldrop_http_requests_total",
			Help: "Total number of HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calldrop_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "calldrop_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

// ObserveUpload records one terminated upload attempt.
func ObserveUpload(outcome string, duration time.Duration) {
	UploadsTotal.WithLabelValues(outcome).Inc()
	UploadDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveAudioSize records the payload size of an accepted upload.
func ObserveAudioSize(bytes int64) {
	UploadAudioBytes.Observe(float64(bytes))
}

// RecordHTTPRequest records one completed HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
