package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seat_allocation_validations_total",
			Help: "Capacity validations by outcome and resource pool",
		},
		[]string{"valid", "resource_type"},
	)

	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seat_allocation_assignments_total",
			Help: "Resource assignments by resource pool and outcome",
		},
		[]string{"resource_type", "outcome"}, // created, reused, split, degraded, failed
	)

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seat_allocation_transitions_total",
			Help: "Plan transitions processed by type",
		},
		[]string{"type"},
	)

	StudentsArchivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seat_allocation_students_archived_total",
			Help: "Students archived into deactivation history by plan transitions",
		},
	)

	ReactivationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seat_allocation_reactivations_total",
			Help: "Students reactivated by mode",
		},
		[]string{"mode"}, // auto, manual
	)

	ReactivationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seat_allocation_reactivation_errors_total",
			Help: "Per-student reactivation failures by error code",
		},
		[]string{"code"},
	)
)

// RecordValidation records a capacity verdict.
func RecordValidation(valid bool, resourceType string) {
	v := "false"
	if valid {
		v = "true"
	}
	ValidationsTotal.WithLabelValues(v, resourceType).Inc()
}

// RecordAssignment records the outcome of one assignment attempt.
func RecordAssignment(resourceType, outcome string) {
	AssignmentsTotal.WithLabelValues(resourceType, outcome).Inc()
}

// RecordTransition records a processed transition and how many students it archived.
func RecordTransition(transitionType string, archived int) {
	TransitionsTotal.WithLabelValues(transitionType).Inc()
	StudentsArchivedTotal.Add(float64(archived))
}

// RecordReactivations records a reactivation batch.
func RecordReactivations(mode string, reactivated int, errorCodes []string) {
	ReactivationsTotal.WithLabelValues(mode).Add(float64(reactivated))
	for _, code := range errorCodes {
		ReactivationErrorsTotal.WithLabelValues(code).Inc()
	}
}
