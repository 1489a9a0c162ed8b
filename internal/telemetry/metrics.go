package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoopIterations — выполненные итерации health-циклов.
	LoopIterations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_loop_iterations_total",
		Help: "Health loop iterations by loop name.",
	}, []string{"loop"})

	// LoopFailures — итерации, завершившиеся ошибкой.
	LoopFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_loop_failures_total",
		Help: "Failed health loop iterations by loop name.",
	}, []string{"loop"})

	// SessionReopens — пересоздания сессии после ошибки соединения с БД.
	SessionReopens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_session_reopens_total",
		Help: "Persistence sessions discarded after connectivity failures.",
	}, []string{"loop"})

	// NodesReaped — node, переведённые в Failed из-за пропавшего процесса.
	NodesReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_nodes_reaped_total",
		Help: "Nodes marked failed because their process disappeared.",
	})

	// SnapshotBlobs — blobs, записанные снимком, по результату (stored/reused).
	SnapshotBlobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_snapshot_blobs_total",
		Help: "Files seen by the project snapshotter, by outcome.",
	}, []string{"outcome"})

	// MachineUsage — последний замер утилизации машины.
	MachineUsage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "conveyor_machine_usage_percent",
		Help: "Latest machine utilization sample.",
	}, []string{"resource"})
)

// MessagesHandled — доставки, обработанные consumer'ами, по очереди и исходу.
var MessagesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "conveyor_messages_handled_total",
	Help: "Queue deliveries by queue and outcome (ack, requeue, dead).",
}, []string{"queue", "outcome"})
