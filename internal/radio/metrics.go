package radio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	listenersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "radio",
		Name:      "listeners",
		Help:      "Listener pipelines currently open.",
	})
	listenerSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "listener_sessions_total",
		Help:      "Listener pipelines started, by output format.",
	}, []string{"format"})
)
