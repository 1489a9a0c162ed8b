package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/storage"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Значения конфигурации по умолчанию.
const (
	defaultHeartbeat = 5 * time.Second
	defaultRepeat    = 1
)

// NodeStore — доступ воркера к node.
type NodeStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Node, error)
	Update(ctx context.Context, n *domain.Node) error
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordPID(ctx context.Context, id uuid.UUID, pid int, at time.Time) (bool, error)
}

// Workspaces готовит рабочие пространства node.
type Workspaces interface {
	Materialize(ctx context.Context, nodeID uuid.UUID) (*storage.Workspace, error)
	Attach(ctx context.Context, nodeID uuid.UUID, dir string) (*storage.Workspace, error)
}

// ModelStore сохраняет модели, зарегистрированные model_add.
type ModelStore interface {
	Create(ctx context.Context, m *domain.Model) error
}

// Events публикует сообщения воркера.
type Events interface {
	PublishExecute(ctx context.Context, queue string, nodeID uuid.UUID, repeat int) error
	PublishFinished(ctx context.Context, payload mq.NodeFinishedPayload) error
}

// Worker выполняет node, назначенные машине.
//
// Worker:
//   - Получает node.execute из общей очереди образа и из личной очереди
//   - Готовит рабочее пространство (материализация или каталог debug node)
//   - Запускает executor в отдельном процессе и отмечает активность node
//   - Выставляет финальный статус и публикует node.finished
//
// Один Worker выполняет не больше одного node одновременно.
// На машине запускается несколько Worker'ов с разными номерами.
type Worker struct {
	nodes      NodeStore
	workspaces Workspaces
	models     ModelStore
	events     Events
	launcher   Launcher
	conn       *mq.Connection

	machine   string
	image     string
	queue     string
	personal  string
	heartbeat time.Duration
	repeat    int
	debugDir  string
	pid       int

	clock  clock.Clock
	logger *slog.Logger

	// exec — один node за раз.
	exec sync.Mutex

	consumers  []*mq.Consumer
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Worker.
type Config struct {
	Settings *config.Config

	// Index — номер воркера на машине, задаёт личную очередь.
	Index int

	Nodes      NodeStore
	Workspaces Workspaces
	Models     ModelStore
	Events     Events

	// Launcher (если nil — ProcessLauncher).
	Launcher Launcher

	// Conn — соединение с брокером. Нужно только для Start.
	Conn *mq.Connection

	// Heartbeat — период отметки активности node (default: 5s).
	Heartbeat time.Duration

	// Repeat — сколько раз node переотправляется после неудачной
	// установки библиотек (default: 1).
	Repeat int

	// DebugDir — каталог debug node (если пусто — текущий каталог).
	DebugDir string

	Clock  clock.Clock
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	repeat := cfg.Repeat
	if repeat <= 0 {
		repeat = defaultRepeat
	}
	launcher := cfg.Launcher
	if launcher == nil {
		launcher = ProcessLauncher{}
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	settings := cfg.Settings
	logger = telemetry.WithComponent(logger, domain.ComponentWorker, settings.Hostname).
		With("worker_index", cfg.Index)

	debugDir := cfg.DebugDir
	if debugDir == "" {
		if wd, err := os.Getwd(); err == nil {
			debugDir = wd
		}
	}

	return &Worker{
		nodes:      cfg.Nodes,
		workspaces: cfg.Workspaces,
		models:     cfg.Models,
		events:     cfg.Events,
		launcher:   launcher,
		conn:       cfg.Conn,
		machine:    settings.Hostname,
		image:      settings.DockerImage,
		queue:      settings.WorkerQueue(),
		personal:   config.PersonalQueue(settings.Hostname, settings.DockerImage, cfg.Index),
		heartbeat:  heartbeat,
		repeat:     repeat,
		debugDir:   debugDir,
		pid:        os.Getpid(),
		clock:      clk,
		logger:     logger,
	}
}

// Queues возвращает общую и личную очереди воркера.
func (w *Worker) Queues() (shared, personal string) {
	return w.queue, w.personal
}

// Start объявляет очереди воркера и запускает consumers.
func (w *Worker) Start(ctx context.Context) error {
	for _, q := range []string{w.queue, w.personal} {
		if err := mq.DeclareMachineQueue(ctx, w.conn, q); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	router := w.Router()
	for _, q := range []string{w.queue, w.personal} {
		consumer := mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    q,
			Handler:  router.Handle,
			Prefetch: 1,
		})
		w.consumers = append(w.consumers, consumer)

		w.wg.Add(1)
		go func(q string) {
			defer w.wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("node consumer error", "queue", q, "error", err)
			}
		}(q)
	}

	w.logger.Info("worker started", "queue", w.queue, "personal_queue", w.personal)
	return nil
}

// Stop останавливает consumers и ждёт их завершения.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	for _, c := range w.consumers {
		c.Stop()
	}
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// Router возвращает обработчики сообщений воркера.
func (w *Worker) Router() mq.Router {
	return mq.Router{
		mq.MessageTypeNodeExecute: w.handleExecute,
	}
}
