package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/shaiso/Conveyor/internal/domain"
)

// LogLevel определяет уровень логирования из переменной окружения.
// Возможные значения: DEBUG, INFO, WARN, ERROR
// По умолчанию: INFO
func LogLevel() slog.Level {
	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger инициализирует глобальный логгер.
//
// Формат вывода определяется переменной LOG_FORMAT:
//   - "json" (по умолчанию) — JSON формат для production
//   - "text" — человекочитаемый формат для разработки
//
// service добавляется ко всем записям, чтобы различать процессы
// одной машины (worker, supervisor, cli).
func SetupLogger(service string) *slog.Logger {
	return setupLogger(os.Stdout, service)
}

// SetupLoggerTo — SetupLogger с выводом в w. CLI пишет логи в stderr,
// чтобы не смешивать их с выводом команд.
func SetupLoggerTo(w io.Writer, service string) *slog.Logger {
	return setupLogger(w, service)
}

func setupLogger(w io.Writer, service string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     LogLevel(),
		AddSource: LogLevel() == slog.LevelDebug,
	}

	format := os.Getenv("LOG_FORMAT")
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)

	return logger
}

// Ключи контекста для передачи данных в логгер.
type ctxKey string

const (
	// CtxLogger — ключ для логгера в контексте.
	CtxLogger ctxKey = "logger"
)

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext извлекает логгер из контекста.
// Если логгер не найден, возвращает глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithGraphID возвращает логгер с добавленным dag_id.
func WithGraphID(logger *slog.Logger, graphID string) *slog.Logger {
	return logger.With("dag_id", graphID)
}

// WithNodeID возвращает логгер с добавленным node_id.
func WithNodeID(logger *slog.Logger, nodeID string) *slog.Logger {
	return logger.With("node_id", nodeID)
}

// WithComponent возвращает логгер с идентичностью компонента и машины.
// Так помечаются все ошибки health-циклов.
func WithComponent(logger *slog.Logger, component domain.ComponentType, machine string) *slog.Logger {
	return logger.With("component", string(component), "computer", machine)
}
