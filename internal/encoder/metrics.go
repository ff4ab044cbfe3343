package encoder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	encodedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "encoded_bytes_total",
		Help:      "Compressed bytes produced across all listeners.",
	})
	encoderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "encoder_failures_total",
		Help:      "Encoder failures by stage.",
	}, []string{"stage"})
)
