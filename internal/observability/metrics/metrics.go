package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "tankfleet_"

var (
	registerOnce sync.Once

	registrations   prometheus.Counter
	heartbeats      prometheus.Counter
	tanksOnline     prometheus.Gauge
	commandsIssued  *prometheus.CounterVec
	commandResults  *prometheus.CounterVec
	commandTimeouts prometheus.Counter
	pollRequests    *prometheus.CounterVec
	reconcilePasses prometheus.Counter
	reconcileMoves  *prometheus.CounterVec
	passLatency     *prometheus.HistogramVec
)

// Init registers fleet coordination metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		registrations = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "registrations_total",
				Help: "Total successful tank registrations (including idempotent repeats)",
			},
		)
		heartbeats = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "heartbeats_total",
				Help: "Total heartbeats recorded",
			},
		)
		tanksOnline = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "tanks_online",
				Help: "Tanks currently considered online",
			},
		)
		commandsIssued = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_issued_total",
				Help: "Total enqueued commands by source",
			},
			[]string{"source"},
		)
		commandResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_results_total",
				Help: "Total terminal command results by status",
			},
			[]string{"status"},
		)
		commandTimeouts = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_timeouts_total",
				Help: "Total dispatched commands reclaimed by the delivery timeout sweep",
			},
		)
		pollRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "poll_requests_total",
				Help: "Total device poll requests by outcome",
			},
			[]string{"outcome"},
		)
		reconcilePasses = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_passes_total",
				Help: "Total schedule reconciliation passes",
			},
		)
		reconcileMoves = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_actions_total",
				Help: "Total reconciliation decisions by action",
			},
			[]string{"action"},
		)
		passLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "pass_latency_seconds",
				Help:    "Periodic pass latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pass"},
		)

		prometheus.MustRegister(
			registrations,
			heartbeats,
			tanksOnline,
			commandsIssued,
			commandResults,
			commandTimeouts,
			pollRequests,
			reconcilePasses,
			reconcileMoves,
			passLatency,
		)
	})
}

// IncRegistration increments the registration counter.
func IncRegistration() {
	if registrations != nil {
		registrations.Inc()
	}
}

// IncHeartbeat increments the heartbeat counter.
func IncHeartbeat() {
	if heartbeats != nil {
		heartbeats.Inc()
	}
}

// SetTanksOnline sets the online tank gauge.
func SetTanksOnline(n int) {
	if tanksOnline != nil {
		tanksOnline.Set(float64(n))
	}
}

// IncCommandIssued increments the enqueue counter.
func IncCommandIssued(source string) {
	if source == "" {
		source = "unknown"
	}
	if commandsIssued != nil {
		commandsIssued.WithLabelValues(source).Inc()
	}
}

// IncCommandResult increments the terminal command result counter.
func IncCommandResult(status string) {
	if status == "" {
		status = "unknown"
	}
	if commandResults != nil {
		commandResults.WithLabelValues(status).Inc()
	}
}

// AddCommandTimeouts adds to the timeout sweep counter.
func AddCommandTimeouts(n int) {
	if n > 0 && commandTimeouts != nil {
		commandTimeouts.Add(float64(n))
	}
}

// IncPoll increments the device poll counter.
func IncPoll(outcome string) {
	if outcome == "" {
		outcome = "empty"
	}
	if pollRequests != nil {
		pollRequests.WithLabelValues(outcome).Inc()
	}
}

// IncReconcilePass increments the reconciliation pass counter.
func IncReconcilePass() {
	if reconcilePasses != nil {
		reconcilePasses.Inc()
	}
}

// IncReconcileAction increments the reconciliation decision counter.
func IncReconcileAction(action string) {
	if action == "" {
		action = "noop"
	}
	if reconcileMoves != nil {
		reconcileMoves.WithLabelValues(action).Inc()
	}
}

// ObservePass records a periodic pass duration.
func ObservePass(pass string, duration time.Duration) {
	if pass == "" {
		pass = "unknown"
	}
	if passLatency != nil {
		passLatency.WithLabelValues(pass).Observe(duration.Seconds())
	}
}
