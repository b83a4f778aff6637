package processor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	opPack   = "pack"
	opUnpack = "unpack"

	statusOK    = "ok"
	statusError = "error"
)

// processorMetrics counts processed messages and times each codec call.
type processorMetrics struct {
	messagesTotal *prometheus.CounterVec   // By operation and status
	bytesTotal    *prometheus.CounterVec   // By operation
	duration      *prometheus.HistogramVec // By operation
}

func newProcessorMetrics(name string) *processorMetrics {
	labels := prometheus.Labels{"processor": name}
	return &processorMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "isopack",
			Subsystem:   "processor",
			Name:        "messages_total",
			Help:        "Total number of messages packed or unpacked",
			ConstLabels: labels,
		}, []string{"operation", "status"}),

		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "isopack",
			Subsystem:   "processor",
			Name:        "bytes_total",
			Help:        "Total number of wire bytes produced or consumed",
			ConstLabels: labels,
		}, []string{"operation"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "isopack",
			Subsystem:   "processor",
			Name:        "duration_seconds",
			Help:        "Codec call duration in seconds",
			ConstLabels: labels,
			Buckets:     []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}, []string{"operation"}),
	}
}

func (m *processorMetrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.messagesTotal, m.bytesTotal, m.duration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *processorMetrics) observe(op string, start time.Time, n int, err error) {
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		m.messagesTotal.WithLabelValues(op, statusError).Inc()
		return
	}
	m.messagesTotal.WithLabelValues(op, statusOK).Inc()
	m.bytesTotal.WithLabelValues(op).Add(float64(n))
}
