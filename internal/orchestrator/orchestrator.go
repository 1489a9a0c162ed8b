package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
)

// Значения конфигурации по умолчанию.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 100
	defaultOnlineWithin = 30 * time.Second
)

// NodeStore — доступ оркестратора к node.
type NodeStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Node, error)
	Update(ctx context.Context, n *domain.Node) error
	ListByGraph(ctx context.Context, graphID uuid.UUID) ([]domain.Node, error)
	ListEdges(ctx context.Context, graphID uuid.UUID) ([]domain.Edge, error)
	ListActiveGraphs(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// GraphStore — чтение графов.
type GraphStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Graph, error)
}

// Fleet — контейнеры флота, готовые принимать node.
type Fleet interface {
	Online(ctx context.Context, within time.Duration) ([]domain.Container, error)
}

// Commands публикует сообщения воркерам и supervisor'ам.
type Commands interface {
	PublishExecute(ctx context.Context, queue string, nodeID uuid.UUID, repeat int) error
	PublishKill(ctx context.Context, queue string, pid int) error
	PublishRemove(ctx context.Context, queue, path string) error
}

// Orchestrator отправляет node графов на машины флота.
//
// Orchestrator:
//   - Периодически проверяет графы с незавершёнными node (polling)
//   - Реагирует на node.finished от воркеров (event-driven)
//   - Отправляет готовые node в очереди контейнеров флота
//   - Пропускает node, чьи зависимости завершились не Success
//   - Останавливает и удаляет node по запросу
//
// Состояние графов в памяти не хранится: каждый проход читает БД заново.
type Orchestrator struct {
	nodes    NodeStore
	graphs   GraphStore
	fleet    Fleet
	commands Commands
	conn     *mq.Connection

	taskFolder   string
	repeat       int
	pollInterval time.Duration
	batchSize    int
	onlineWithin time.Duration

	// active — графы в обработке (graphID → struct{}).
	active map[uuid.UUID]struct{}
	mu     sync.Mutex

	// cursor — позиция round-robin по образу.
	cursor   map[string]int
	cursorMu sync.Mutex

	consumer *mq.Consumer

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Orchestrator.
type Config struct {
	Nodes    NodeStore
	Graphs   GraphStore
	Fleet    Fleet
	Commands Commands

	// Conn — соединение с брокером. Нужно только для Start.
	Conn *mq.Connection

	// TaskFolder — каталог рабочих пространств на машинах флота.
	TaskFolder string

	// Repeat — число повторов node после неудачной установки библиотек.
	Repeat int

	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // графов за один poll (default: 100)
	OnlineWithin time.Duration // свежесть heartbeat контейнера (default: 30s)

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	onlineWithin := cfg.OnlineWithin
	if onlineWithin <= 0 {
		onlineWithin = defaultOnlineWithin
	}
	repeat := cfg.Repeat
	if repeat < 0 {
		repeat = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", string(domain.ComponentOrchestrator))

	return &Orchestrator{
		nodes:        cfg.Nodes,
		graphs:       cfg.Graphs,
		fleet:        cfg.Fleet,
		commands:     cfg.Commands,
		conn:         cfg.Conn,
		taskFolder:   cfg.TaskFolder,
		repeat:       repeat,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		onlineWithin: onlineWithin,
		active:       make(map[uuid.UUID]struct{}),
		cursor:       make(map[string]int),
		logger:       logger,
	}
}

// Start запускает consumer node.finished и polling.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"poll_interval", o.pollInterval,
		"batch_size", o.batchSize,
	)

	o.consumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueNodesFinished),
		Handler:  o.Router().Handle,
		Prefetch: 10,
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("finished consumer error", "error", err)
		}
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.pollLoop(ctx)
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator.
func (o *Orchestrator) Stop() {
	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	if o.consumer != nil {
		o.consumer.Stop()
	}
	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
}

// Router возвращает обработчики сообщений оркестратора.
func (o *Orchestrator) Router() mq.Router {
	return mq.Router{
		mq.MessageTypeNodeFinished: o.handleNodeFinished,
	}
}

// pollLoop — цикл polling.
func (o *Orchestrator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	// первый poll сразу: графы, созданные пока оркестратор был выключен
	o.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Poll(ctx)
		}
	}
}

// Poll выполняет один проход по активным графам.
func (o *Orchestrator) Poll(ctx context.Context) {
	graphs, err := o.nodes.ListActiveGraphs(ctx, o.batchSize)
	if err != nil {
		o.logger.Error("failed to list active dags", "error", err)
		return
	}
	if len(graphs) == 0 {
		return
	}

	o.logger.Debug("poll found active dags", "count", len(graphs))

	for _, id := range graphs {
		if err := o.ProcessGraph(ctx, id); err != nil && !errors.Is(err, ErrGraphBusy) {
			o.logger.Error("failed to process dag", "dag_id", id, "error", err)
		}
	}
}

// acquire помечает граф как обрабатываемый.
func (o *Orchestrator) acquire(graphID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[graphID]; busy {
		return false
	}
	o.active[graphID] = struct{}{}
	return true
}

func (o *Orchestrator) release(graphID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, graphID)
}

// next выбирает контейнер round-robin.
func (o *Orchestrator) next(image string, candidates []domain.Container) domain.Container {
	o.cursorMu.Lock()
	defer o.cursorMu.Unlock()
	i := o.cursor[image] % len(candidates)
	o.cursor[image] = i + 1
	return candidates[i]
}
