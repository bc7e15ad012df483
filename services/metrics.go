package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservations_created_total",
			Help: "Reservations created, by initial status",
		},
		[]string{"status"},
	)
	bookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Bookings created from successful payments",
	})
	sessionClaimConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_claim_conflicts_total",
		Help: "Claims that lost the race for a session",
	})
	notificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Best-effort notifications that failed",
		},
		[]string{"channel"},
	)
	sweepItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_items_total",
			Help: "Items handled by cron sweeps, by sweep and outcome",
		},
		[]string{"sweep", "outcome"},
	)
)

// SweepResult is returned by every cron sweep.
type SweepResult struct {
	Processed int `json:"processed"`
	Expired   int `json:"expired,omitempty"`
	Completed int `json:"completed,omitempty"`
	Sent      int `json:"sent,omitempty"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (r SweepResult) record(sweep string) {
	sweepItems.WithLabelValues(sweep, "processed").Add(float64(r.Processed))
	sweepItems.WithLabelValues(sweep, "skipped").Add(float64(r.Skipped))
	sweepItems.WithLabelValues(sweep, "failed").Add(float64(r.Failed))
}
