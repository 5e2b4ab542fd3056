package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClassificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sarthi_distress_classifications_total",
		Help: "Distress classifications by outcome (severity or unavailable).",
	}, []string{"outcome"})

	StageTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sarthi_stage_transitions_total",
		Help: "Committed reflection stage transitions by source stage.",
	}, []string{"from_stage"})

	ReflectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sarthi_reflections_total",
		Help: "Workflow starts split by created, resumed and completed.",
	}, []string{"event"})

	PersistenceConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sarthi_persistence_conflicts_total",
		Help: "Transitions rejected because another writer moved the stage first.",
	})

	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sarthi_distress_alerts_total",
		Help: "Distress alert deliveries by result.",
	}, []string{"result"})
)
