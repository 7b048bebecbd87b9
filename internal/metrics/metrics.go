package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	labelMode   = "mode"
	labelResult = "result"
	labelReason = "reason"
	labelOp     = "op"
)

var (
	SpinsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spinwheel_spins_started_total",
		Help: "Spins started, by mode (deterministic|random).",
	}, []string{labelMode})

	SpinsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spinwheel_spins_completed_total",
		Help: "Spins settled, by result (winner|none|snapped).",
	}, []string{labelResult})

	SpinsDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spinwheel_spins_denied_total",
		Help: "Spin requests refused, by reason.",
	}, []string{labelReason})

	RecordStoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spinwheel_record_store_errors_total",
		Help: "Eligibility record store failures, by operation (read|write).",
	}, []string{labelOp})

	SpinDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spinwheel_spin_duration_seconds",
		Help:    "Wall-clock time from spin start to settle.",
		Buckets: []float64{0.5, 1, 2, 3, 4, 5, 7.5, 10, 15},
	})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spinwheel_websocket_clients",
		Help: "Connected WebSocket clients.",
	})
)

func Denied(reason string) {
	SpinsDenied.WithLabelValues(reason).Inc()
}

func StoreError(op string) {
	RecordStoreErrors.WithLabelValues(op).Inc()
}
