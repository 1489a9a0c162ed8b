package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrNodeNotFound — node не найден в БД.
	ErrNodeNotFound = errors.New("node not found")

	// ErrGraphNotFound — граф не найден в БД.
	ErrGraphNotFound = errors.New("dag not found")

	// ErrBrokenGraph — node и рёбра графа в БД не образуют DAG.
	ErrBrokenGraph = errors.New("broken dag")

	// ErrGraphBusy — граф уже обрабатывается другим проходом.
	ErrGraphBusy = errors.New("dag already being processed")
)
