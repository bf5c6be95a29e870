package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScanCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanbot_scan_cycles_total",
		Help: "Completed scan cycles.",
	})
	ScanTicksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanbot_scan_ticks_skipped_total",
		Help: "Ticks skipped because the previous cycle was still running.",
	})
	AccountScanErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanbot_account_scan_errors_total",
		Help: "Per-account scan failures (quotes, strategy panic).",
	})
	SignalsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanbot_signals_accepted_total",
		Help: "Candidates that passed the gatekeeper.",
	})
	SignalsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scanbot_signals_rejected_total",
		Help: "Candidates rejected by the gatekeeper.",
	}, []string{"reason"})
	StoreEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanbot_store_evictions_total",
		Help: "Signals dropped by the bounded store.",
	})
	StoreSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scanbot_store_size",
		Help: "Signals currently tracked.",
	})
	PartialExits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanbot_partial_exits_total",
		Help: "Milestone partial-close instructions issued.",
	})
)
