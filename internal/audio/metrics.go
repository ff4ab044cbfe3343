package audio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeComplete = "complete"
	outcomeSkipped  = "skipped"
	outcomeAborted  = "aborted"
	outcomeClosed   = "closed"
)

var trackOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "radio",
	Name:      "track_decodes_total",
	Help:      "Track decode sessions by how they ended.",
}, []string{"result"})
