package engine

import "errors"

// Ошибки разбора описания pipeline.
var (
	// ErrMissingKey — в описании нет обязательного ключа.
	ErrMissingKey = errors.New("pipeline description is missing a required key")

	// ErrInvalidDescription — описание не является корректным YAML нужной формы.
	ErrInvalidDescription = errors.New("invalid pipeline description")

	// ErrEmptyType — у executor'а не указан type.
	ErrEmptyType = errors.New("executor has empty type")
)

// Ошибки построения графа зависимостей.
var (
	// ErrUnknownDependency — executor зависит от имени, которого нет в executors.
	ErrUnknownDependency = errors.New("executor depends on unknown executor")

	// ErrCyclicDependency — зависимости образуют цикл (включая зависимость от себя).
	ErrCyclicDependency = errors.New("cyclic dependency detected")
)

// BuildError — ошибка описания с указанием executor'а.
type BuildError struct {
	Node    string // имя executor'а, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *BuildError) Error() string {
	if e.Node != "" {
		return "executor " + e.Node + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// NewBuildError создаёт новую ошибку описания.
func NewBuildError(node, field, message string, err error) *BuildError {
	return &BuildError{
		Node:    node,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
