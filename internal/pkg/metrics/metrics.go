package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every collector exported on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// JoinState is 1 for the current join state label and 0 for the others.
	JoinState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "broute_join_state",
			Help: "Current state of the B-route join handshake (1 = active state).",
		},
		[]string{"state"},
	)

	// ScanAttempts counts active scans by duration exponent and result.
	ScanAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broute_scan_attempts_total",
			Help: "Total number of active scans issued to the dongle.",
		},
		[]string{"duration", "result"}, // result: found/empty/error
	)

	// LinesRead counts lines received from the dongle by classification.
	LinesRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broute_stack_lines_total",
			Help: "Total number of lines read from the Wi-SUN dongle.",
		},
		[]string{"kind"},
	)

	// RequestsSent counts power requests by outcome.
	RequestsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broute_requests_sent_total",
			Help: "Total number of instantaneous power requests sent to the meter.",
		},
		[]string{"status"}, // status: success/failed
	)

	// DatagramsDiscarded counts datagrams dropped by the receiver.
	DatagramsDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broute_datagrams_discarded_total",
			Help: "Total number of received datagrams that did not yield a reading.",
		},
		[]string{"reason"},
	)

	// ReadingsTotal counts readings handed to the recorders.
	ReadingsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broute_readings_total",
			Help: "Total number of instantaneous power readings received.",
		},
	)

	// InstantaneousPower is the most recent reading in watts.
	InstantaneousPower = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broute_instantaneous_power_watts",
			Help: "Most recent instantaneous power reported by the smart meter.",
		},
	)
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	Registry.MustRegister(JoinState)
	Registry.MustRegister(ScanAttempts)
	Registry.MustRegister(LinesRead)
	Registry.MustRegister(RequestsSent)
	Registry.MustRegister(DatagramsDiscarded)
	Registry.MustRegister(ReadingsTotal)
	Registry.MustRegister(InstantaneousPower)
}

// SetJoinState marks state as the active join state.
func SetJoinState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		JoinState.WithLabelValues(s).Set(v)
	}
}
