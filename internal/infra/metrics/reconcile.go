package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		signalsTotal,
		resolutionsTotal,
		oracleChecksTotal,
		resolutionLatency,
		surfacesOpenedTotal,
	)
}

var (
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confirmation_signals_total",
			Help: "Confirmation signals consumed, by channel and outcome.",
		},
		[]string{"source", "outcome"},
	)

	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_resolutions_total",
			Help: "Committed session resolutions, by resolution and winning source.",
		},
		[]string{"resolution", "source"},
	)

	oracleChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_final_checks_total",
			Help: "One-shot final oracle checks on deadline/cancel, by result.",
		},
		[]string{"result"},
	)

	resolutionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "session_resolution_seconds",
			Help:    "Time from session creation to committed resolution.",
			Buckets: []float64{1, 3, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	surfacesOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_surfaces_opened_total",
			Help: "Checkout surfaces opened, by mode (popup vs full-page fallback).",
		},
		[]string{"mode"},
	)
)

func IncSignal(source, outcome string) {
	signalsTotal.WithLabelValues(norm(source), norm(outcome)).Inc()
}

func IncResolution(resolution, source string) {
	resolutionsTotal.WithLabelValues(norm(resolution), norm(source)).Inc()
}

func IncOracleCheck(result string) {
	oracleChecksTotal.WithLabelValues(norm(result)).Inc()
}

func ObserveResolutionLatency(d time.Duration) {
	resolutionLatency.Observe(d.Seconds())
}

func IncSurfaceOpened(blocked bool) {
	mode := "popup"
	if blocked {
		mode = "fullpage"
	}
	surfacesOpenedTotal.WithLabelValues(mode).Inc()
}
