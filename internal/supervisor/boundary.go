package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/telemetry"
)

// NodeError — ошибка итерации, относящаяся к конкретному node.
// Boundary добавляет node_id в запись лога.
type NodeError struct {
	NodeID uuid.UUID
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// BoundaryConfig — конфигурация Boundary.
type BoundaryConfig[S any] struct {
	// Name — имя цикла для логов и метрик.
	Name string

	// Open открывает сессию цикла.
	Open func(ctx context.Context) (S, error)

	// Close закрывает сессию. Может быть nil.
	Close func(S)

	// IsTransient отличает ошибки соединения от прочих.
	// После такой ошибки сессия пересоздаётся.
	IsTransient func(error) bool

	// Logger уже должен быть помечен компонентом и машиной.
	Logger *slog.Logger

	// OpenTimeout ограничивает попытки открыть сессию в одной итерации.
	OpenTimeout time.Duration
}

// Boundary — граница ошибок одного цикла.
//
// Владеет сессией цикла. Любая ошибка или паника итерации логируется
// и не выходит наружу. Ошибка соединения закрывает сессию, и следующая
// итерация откроет новую.
type Boundary[S any] struct {
	name        string
	open        func(ctx context.Context) (S, error)
	close       func(S)
	isTransient func(error) bool
	logger      *slog.Logger
	openTimeout time.Duration

	mu      sync.Mutex
	session S
	live    bool
}

// NewBoundary создаёт Boundary.
func NewBoundary[S any](cfg BoundaryConfig[S]) *Boundary[S] {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	isTransient := cfg.IsTransient
	if isTransient == nil {
		isTransient = func(error) bool { return false }
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	return &Boundary[S]{
		name:        cfg.Name,
		open:        cfg.Open,
		close:       cfg.Close,
		isTransient: isTransient,
		logger:      logger.With("loop", cfg.Name),
		openTimeout: openTimeout,
	}
}

// Run выполняет одну итерацию fn с сессией цикла.
// Возвращает ошибку итерации только для наблюдения: она уже залогирована.
func (b *Boundary[S]) Run(ctx context.Context, fn func(ctx context.Context, session S) error) (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			b.fail(err)
		}
	}()

	session, err := b.acquire(ctx)
	if err != nil {
		b.fail(err)
		return err
	}

	if err = fn(ctx, session); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return err
		}
		if b.isTransient(err) {
			b.discard()
		}
		b.fail(err)
		return err
	}
	return nil
}

// Job возвращает итерацию для scheduler.
func (b *Boundary[S]) Job(fn func(ctx context.Context, session S) error) func(ctx context.Context) {
	return func(ctx context.Context) {
		_ = b.Run(ctx, fn)
	}
}

// Step возвращает итерацию для непрерывного цикла scheduler.
// В отличие от Job ошибка итерации возвращается, чтобы цикл выдержал паузу.
func (b *Boundary[S]) Step(fn func(ctx context.Context, session S) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return b.Run(ctx, fn)
	}
}

// Close закрывает текущую сессию.
func (b *Boundary[S]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release()
}

func (b *Boundary[S]) acquire(ctx context.Context) (S, error) {
	if b.live {
		return b.session, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = b.openTimeout

	session, err := backoff.RetryNotifyWithData(func() (S, error) {
		s, err := b.open(ctx)
		if err != nil && !b.isTransient(err) {
			return s, backoff.Permanent(err)
		}
		return s, err
	}, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		b.logger.Warn("open session failed, retrying", "error", err, "retry_in", next)
	})
	if err != nil {
		return session, fmt.Errorf("open session: %w", err)
	}

	b.session = session
	b.live = true
	return session, nil
}

// discard закрывает сессию после ошибки соединения.
func (b *Boundary[S]) discard() {
	b.release()
	telemetry.SessionReopens.WithLabelValues(b.name).Inc()
	b.logger.Warn("session discarded after connectivity failure")
}

func (b *Boundary[S]) release() {
	if !b.live {
		return
	}
	if b.close != nil {
		b.close(b.session)
	}
	var zero S
	b.session = zero
	b.live = false
}

func (b *Boundary[S]) fail(err error) {
	telemetry.LoopFailures.WithLabelValues(b.name).Inc()

	logger := b.logger
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		logger = telemetry.WithNodeID(logger, nodeErr.NodeID.String())
	}
	logger.Error("loop iteration failed", "error", err)
}
