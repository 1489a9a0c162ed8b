package domain

import "fmt"

// NodeStatus — статус выполнения node.
//
// Статус хранится как целочисленный ранг. Ранг используется только для
// проверок вида "node дошёл как минимум до стадии X":
//
//	NotRan(0) < Queued(1) < InProgress(2) < {Failed, Stopped, Skipped, Success}
//
// Failed/Stopped/Skipped/Success — равноправные финальные статусы.
// Их числовой порядок между собой ничего не означает, для них
// используется IsTerminal().
type NodeStatus int

const (
	// NodeStatusNotRan — node создан Graph Builder'ом и ещё не отправлялся.
	NodeStatusNotRan NodeStatus = 0

	// NodeStatusQueued — node отправлен в очередь воркера.
	NodeStatusQueued NodeStatus = 1

	// NodeStatusInProgress — процесс node запущен на машине.
	NodeStatusInProgress NodeStatus = 2

	// NodeStatusFailed — выполнение завершилось ошибкой или процесс пропал.
	NodeStatusFailed NodeStatus = 3

	// NodeStatusStopped — остановлен пользователем.
	NodeStatusStopped NodeStatus = 4

	// NodeStatusSkipped — остановлен до запуска.
	NodeStatusSkipped NodeStatus = 5

	// NodeStatusSuccess — успешно завершён.
	NodeStatusSuccess NodeStatus = 6
)

var nodeStatusNames = map[NodeStatus]string{
	NodeStatusNotRan:     "not_ran",
	NodeStatusQueued:     "queued",
	NodeStatusInProgress: "in_progress",
	NodeStatusFailed:     "failed",
	NodeStatusStopped:    "stopped",
	NodeStatusSkipped:    "skipped",
	NodeStatusSuccess:    "success",
}

// Rank возвращает числовой ранг статуса.
func (s NodeStatus) Rank() int {
	return int(s)
}

// AtLeast возвращает true, если статус достиг стадии other.
//
// Для финальных статусов сравнение с другим финальным статусом
// не имеет смысла: Failed.AtLeast(Success) == false,
// Success.AtLeast(Failed) == false.
func (s NodeStatus) AtLeast(other NodeStatus) bool {
	if s.IsTerminal() && other.IsTerminal() {
		return s == other
	}
	return s.Rank() >= other.Rank()
}

// Before возвращает true, если s строго предшествует other.
// Финальные статусы друг другу не предшествуют.
func (s NodeStatus) Before(other NodeStatus) bool {
	if s.IsTerminal() {
		return false
	}
	return s.Rank() < other.Rank()
}

// IsTerminal возвращает true, если статус финальный.
func (s NodeStatus) IsTerminal() bool {
	switch s {
	case NodeStatusFailed, NodeStatusStopped, NodeStatusSkipped, NodeStatusSuccess:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление NodeStatus.
func (s NodeStatus) String() string {
	if name, ok := nodeStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseNodeStatus парсит строку в NodeStatus.
func ParseNodeStatus(s string) (NodeStatus, error) {
	for status, name := range nodeStatusNames {
		if name == s {
			return status, nil
		}
	}
	return NodeStatusNotRan, fmt.Errorf("unknown node status %q", s)
}

// NodeKind — тип node.
type NodeKind int

const (
	// NodeKindTrain — обучение модели.
	NodeKindTrain NodeKind = 0

	// NodeKindInfer — инференс.
	NodeKindInfer NodeKind = 1

	// NodeKindUser — произвольный пользовательский шаг.
	NodeKindUser NodeKind = 2
)

// String возвращает строковое представление NodeKind.
func (k NodeKind) String() string {
	switch k {
	case NodeKindTrain:
		return "train"
	case NodeKindInfer:
		return "infer"
	default:
		return "user"
	}
}

// GraphKind — вид графа.
type GraphKind int

const (
	// GraphKindStandard — обычный граф из секции executors.
	GraphKindStandard GraphKind = 0

	// GraphKindPipe — граф-интерфейс из секций interfaces + pipes.
	GraphKindPipe GraphKind = 1
)

// String возвращает строковое представление GraphKind.
func (k GraphKind) String() string {
	if k == GraphKindPipe {
		return "pipe"
	}
	return "standard"
}

// ComponentType — идентичность компонента в логах.
type ComponentType string

const (
	ComponentOrchestrator     ComponentType = "orchestrator"
	ComponentBuilder          ComponentType = "builder"
	ComponentWorker           ComponentType = "worker"
	ComponentWorkerSupervisor ComponentType = "worker_supervisor"
)
