package worker

import "errors"

// Ошибки воркера.
var (
	// ErrNodeNotFound — node не найден в БД.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNodeFinished — node уже в финальном статусе.
	ErrNodeFinished = errors.New("node already finished")

	// ErrNoCommand — у executor'а нет команды запуска.
	ErrNoCommand = errors.New("executor has no command")

	// ErrExecutionFailed — процесс executor'а завершился ошибкой.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrInvalidModelSpec — у model_add не хватает параметров.
	ErrInvalidModelSpec = errors.New("invalid model_add parameters")
)
