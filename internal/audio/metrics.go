package audio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the capture counters. Children used on the callback thread
// are resolved up front so the hot path is a single atomic add.
type Metrics struct {
	framesWritten       prometheus.Counter
	writeErrors         prometheus.Counter
	droppedNotRecording prometheus.Counter
	droppedStateBusy    prometheus.Counter
	droppedWriterBusy   prometheus.Counter
	commands            *prometheus.CounterVec
}

// NewMetrics registers the capture counters with reg. A nil reg yields
// working but unregistered counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	dropped := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dsarec",
		Subsystem: "capture",
		Name:      "buffers_dropped_total",
		Help:      "Input buffers not persisted, by reason.",
	}, []string{"reason"})

	return &Metrics{
		framesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dsarec",
			Subsystem: "capture",
			Name:      "frames_written_total",
			Help:      "Mono frames written to recording files.",
		}),
		writeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dsarec",
			Subsystem: "capture",
			Name:      "write_errors_total",
			Help:      "Buffers lost to output write failures.",
		}),
		droppedNotRecording: dropped.WithLabelValues("not_recording"),
		droppedStateBusy:    dropped.WithLabelValues("state_busy"),
		droppedWriterBusy:   dropped.WithLabelValues("writer_busy"),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsarec",
			Subsystem: "controller",
			Name:      "commands_total",
			Help:      "Commands processed by the capture controller, by kind and resulting status.",
		}, []string{"command", "status"}),
	}
}

func (m *Metrics) command(kind CommandKind, status StatusKind) {
	m.commands.WithLabelValues(kind.String(), status.String()).Inc()
}
