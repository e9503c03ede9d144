package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// LoginsTotal counts portal login attempts by path and outcome.
	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetlink_logins_total",
			Help: "Total number of portal login attempts.",
		},
		[]string{"via", "result"}, // via: direct/solver, result: success/failure
	)

	// FetchCyclesTotal counts position fetch cycles by outcome.
	FetchCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetlink_fetch_cycles_total",
			Help: "Total number of position fetch cycles.",
		},
		[]string{"result"}, // result: success/failure
	)

	// FetchDuration records how long a full fetch cycle takes.
	FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetlink_fetch_duration_seconds",
			Help:    "Duration of position fetch cycles.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// StrategyHitsTotal counts which fetch strategy produced positions.
	StrategyHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetlink_fetch_strategy_hits_total",
			Help: "Fetch cycles answered per discovery strategy.",
		},
		[]string{"strategy"},
	)

	// VehiclesTracked reports the number of vehicles in the last snapshot.
	VehiclesTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetlink_vehicles_tracked",
			Help: "Number of vehicles in the most recent snapshot.",
		},
	)

	// ConsecutiveFailures reports the coordinator's current failure streak.
	ConsecutiveFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetlink_consecutive_failures",
			Help: "Consecutive failed fetch cycles since the last success.",
		},
	)

	// RateLimitWaits counts fetches delayed by the request budget.
	RateLimitWaits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetlink_ratelimit_waits_total",
			Help: "Total number of requests delayed by the rate limiter.",
		},
	)
)

func init() {
	prometheus.MustRegister(LoginsTotal)
	prometheus.MustRegister(FetchCyclesTotal)
	prometheus.MustRegister(FetchDuration)
	prometheus.MustRegister(StrategyHitsTotal)
	prometheus.MustRegister(VehiclesTracked)
	prometheus.MustRegister(ConsecutiveFailures)
	prometheus.MustRegister(RateLimitWaits)
}
