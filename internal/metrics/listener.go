package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"escrowScope/internal/model"
)

var (
	listenerEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrowscope",
		Subsystem: "listener",
		Name:      "events_total",
		Help:      "Count of canonical events applied to the projection store.",
	}, []string{"chain", "kind", "result"})

	listenerDecodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrowscope",
		Subsystem: "listener",
		Name:      "decode_errors_total",
		Help:      "Count of chain payloads that could not be decoded.",
	}, []string{"chain"})

	listenerReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrowscope",
		Subsystem: "listener",
		Name:      "reconnects_total",
		Help:      "Count of stream sessions that ended and were restarted.",
	}, []string{"chain"})

	listenerCursorSavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrowscope",
		Subsystem: "listener",
		Name:      "cursor_saves_total",
		Help:      "Count of cursor checkpoint writes.",
	}, []string{"chain", "status"})

	listenerBatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "escrowscope",
		Subsystem: "listener",
		Name:      "batch_duration_seconds",
		Help:      "Duration of applying one delivered batch.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"chain", "status"})

	listenerCursorPosition = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "escrowscope",
		Subsystem: "listener",
		Name:      "cursor_position",
		Help:      "Last checkpointed block or slot.",
	}, []string{"chain"})
)

// Listener tracks metrics for one chain listener.
type Listener struct {
	chain string
}

func NewListener(chain model.Chain) *Listener {
	name := string(chain)
	if name == "" {
		name = "unknown"
	}
	return &Listener{chain: name}
}

// ObserveEvent records the store outcome of one canonical event.
func (m Listener) ObserveEvent(kind model.EventKind, result string) {
	listenerEventsTotal.WithLabelValues(m.chain, string(kind), result).Inc()
}

func (m Listener) ObserveDecodeErrors(n int) {
	if n <= 0 {
		return
	}
	listenerDecodeErrorsTotal.WithLabelValues(m.chain).Add(float64(n))
}

func (m Listener) ObserveReconnect() {
	listenerReconnectsTotal.WithLabelValues(m.chain).Inc()
}

// ObserveCursorSave records a checkpoint write and the position it stored.
func (m Listener) ObserveCursorSave(err error, position uint64) {
	status := "success"
	if err != nil {
		status = "error"
	} else {
		listenerCursorPosition.WithLabelValues(m.chain).Set(float64(position))
	}
	listenerCursorSavesTotal.WithLabelValues(m.chain, status).Inc()
}

func (m Listener) ObserveBatch(err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	listenerBatchDuration.WithLabelValues(m.chain, status).Observe(time.Since(started).Seconds())
}
