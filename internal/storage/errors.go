package storage

import "errors"

var (
	// ErrExecutorNotFound — executor node отсутствует в реестре после материализации.
	ErrExecutorNotFound = errors.New("executor not found")

	// ErrProvisionFailed — не удалось установить библиотеку рабочего пространства.
	ErrProvisionFailed = errors.New("library provisioning failed")

	// ErrUnsafePath — путь из манифеста выходит за пределы рабочего пространства.
	ErrUnsafePath = errors.New("manifest path escapes workspace")
)
