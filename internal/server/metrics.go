package server

import (
	"github.com/edgelesssys/go-tdx-attest/tdx"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	quoteRequests *prometheus.CounterVec
	quoteBytes    prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		quoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tdx",
			Name:      "quote_requests_total",
			Help:      "Quote requests by answering source and result.",
		}, []string{"source", "result"}),
		quoteBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tdx",
			Name:      "quote_size_bytes",
			Help:      "Size of generated quotes.",
			Buckets:   prometheus.ExponentialBuckets(512, 2, 6),
		}),
	}
	reg.MustRegister(m.quoteRequests, m.quoteBytes)
	return m
}

func (m *metrics) observe(res tdx.Result) {
	result := "success"
	if !res.OK() {
		result = "failure"
	}
	m.quoteRequests.WithLabelValues(res.Source, result).Inc()
	if res.OK() {
		m.quoteBytes.Observe(float64(len(res.Quote)))
	}
}
