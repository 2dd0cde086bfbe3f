package anttp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	remoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "antftp_remote_requests_total",
		Help: "AntTP requests by operation and outcome",
	}, []string{"op", "outcome"})

	remoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "antftp_remote_request_duration_seconds",
		Help:    "AntTP request latency including retries",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"op"})

	remoteBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "antftp_remote_bytes_total",
		Help: "Payload bytes exchanged with AntTP by direction",
	}, []string{"direction"})
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
