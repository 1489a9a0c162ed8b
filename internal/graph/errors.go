package graph

import "errors"

var (
	// ErrUnknownProject — проект из info.project не найден.
	ErrUnknownProject = errors.New("unknown project")

	// ErrUnknownReportLayout — раскладка отчёта не зарегистрирована.
	ErrUnknownReportLayout = errors.New("unknown report layout")

	// ErrConflictingSource — одновременно запрошены снимок файлов и копия из графа.
	ErrConflictingSource = errors.New("upload files and copy from dag are mutually exclusive")

	// ErrWrongKind — описание не того вида (обычный граф вместо pipe или наоборот).
	ErrWrongKind = errors.New("pipeline description has wrong kind")

	// ErrUnknownPipe — в pipe-графе нет pipe с таким именем.
	ErrUnknownPipe = errors.New("unknown pipe")
)
