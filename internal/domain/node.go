package domain

import (
	"time"

	"github.com/google/uuid"
)

// Resources — запрошенные node ресурсы.
type Resources struct {
	GPU    int     `json:"gpu"`
	CPU    int     `json:"cpu"`
	Memory float64 `json:"memory"`
}

// Node — одна планируемая единица работы внутри графа.
//
// Node создаётся Graph Builder'ом и никогда не удаляется ядром:
// жизненный цикл заканчивается финальным статусом. Поля статуса и
// назначения меняют воркеры и supervisor.
type Node struct {
	// ID — уникальный идентификатор node.
	ID uuid.UUID `json:"id"`

	// Name — имя node (ключ из секции executors).
	Name string `json:"name"`

	// Executor — ключ executor'а в описании pipeline.
	Executor string `json:"executor"`

	// GraphID — граф-владелец.
	GraphID uuid.UUID `json:"dag_id"`

	// Resources — запрошенные gpu/cpu/memory.
	Resources Resources `json:"resources"`

	// Kind — Train, Infer или User.
	Kind NodeKind `json:"kind"`

	// Status — текущий статус.
	Status NodeStatus `json:"status"`

	// Debug — node выполняется из текущего каталога без материализации.
	Debug bool `json:"debug"`

	// Computer — машина, на которой node должен выполняться (info.computer).
	Computer string `json:"computer,omitempty"`

	// ComputerAssigned и DockerAssigned выставляются при запуске.
	ComputerAssigned string `json:"computer_assigned,omitempty"`
	DockerAssigned   string `json:"docker_assigned,omitempty"`

	// PID — идентификатор процесса, выполняющего node.
	PID int `json:"pid,omitempty"`

	// LastActivity — время последней активности процесса node.
	LastActivity *time.Time `json:"last_activity,omitempty"`

	// Steps — количество шагов executor'а.
	Steps int `json:"steps"`

	// ReportID — персональный отчёт node (только для Train).
	ReportID *uuid.UUID `json:"report_id,omitempty"`

	// AdditionalInfo — непрозрачные данные, например report_config.
	AdditionalInfo map[string]any `json:"additional_info,omitempty"`

	// StartedAt и FinishedAt — время начала и окончания выполнения.
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// MarkInProgress фиксирует назначение node на машину и процесс.
func (n *Node) MarkInProgress(computer, docker string, pid int, now time.Time) {
	n.Status = NodeStatusInProgress
	n.ComputerAssigned = computer
	n.DockerAssigned = docker
	n.PID = pid
	n.StartedAt = &now
	n.LastActivity = &now
}

// MarkFailed переводит node в статус Failed.
func (n *Node) MarkFailed(now time.Time) {
	n.Status = NodeStatusFailed
	n.FinishedAt = &now
}

// MarkSuccess переводит node в статус Success.
func (n *Node) MarkSuccess(now time.Time) {
	n.Status = NodeStatusSuccess
	n.FinishedAt = &now
}

// Touch обновляет время последней активности.
func (n *Node) Touch(now time.Time) {
	n.LastActivity = &now
}

// IdleFor возвращает время, прошедшее с последней активности.
// Без отметок активности отсчёт идёт от StartedAt; node без обеих
// отметок считается бездействующим бесконечно.
func (n *Node) IdleFor(now time.Time) time.Duration {
	switch {
	case n.LastActivity != nil:
		return now.Sub(*n.LastActivity)
	case n.StartedAt != nil:
		return now.Sub(*n.StartedAt)
	default:
		return time.Duration(1<<63 - 1)
	}
}

// MarkStopped переводит node в статус Stopped.
func (n *Node) MarkStopped(now time.Time) {
	n.Status = NodeStatusStopped
	n.FinishedAt = &now
}

// MarkSkipped переводит node в статус Skipped.
func (n *Node) MarkSkipped(now time.Time) {
	n.Status = NodeStatusSkipped
	n.FinishedAt = &now
}
