package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/benbjohnson/clock"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/fleet"
	"github.com/shaiso/Conveyor/internal/graph"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/report"
	"github.com/shaiso/Conveyor/internal/storage"
)

// Env — ресурсы команды: сессия БД и соединение с брокером.
// Открываются лениво, только если команде они нужны.
type Env struct {
	Settings *config.Config
	Logger   *slog.Logger

	session *repo.Session
	conn    *mq.Connection
}

// NewEnv создаёт Env.
func NewEnv(settings *config.Config, logger *slog.Logger) *Env {
	if logger == nil {
		logger = slog.Default()
	}
	return &Env{Settings: settings, Logger: logger}
}

// Session возвращает сессию БД.
func (e *Env) Session(ctx context.Context) (*repo.Session, error) {
	if e.session != nil {
		return e.session, nil
	}
	s, err := repo.OpenSession(ctx, e.Settings.DBURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	e.session = s
	return s, nil
}

// Publisher возвращает publisher поверх соединения с брокером.
func (e *Env) Publisher(ctx context.Context) (*mq.Publisher, error) {
	if e.conn == nil {
		conn, err := mq.NewConnection(e.Settings.RabbitMQURL, e.Logger)
		if err != nil {
			return nil, fmt.Errorf("connect to broker: %w", err)
		}
		if err := mq.SetupTopology(ctx, conn); err != nil {
			conn.Close()
			return nil, err
		}
		e.conn = conn
	}
	return mq.NewPublisher(e.conn, e.Logger), nil
}

// Builder собирает Graph Builder поверх сессии.
func (e *Env) Builder(ctx context.Context) (*graph.Builder, error) {
	s, err := e.Session(ctx)
	if err != nil {
		return nil, err
	}
	layouts, err := report.Load(filepath.Join(e.Settings.ConfigFolder(), "reports"))
	if err != nil {
		return nil, err
	}

	return graph.New(graph.Config{
		Projects:  s.Projects,
		Graphs:    s.Graphs,
		Nodes:     s.Nodes,
		Reports:   s.Reports,
		Models:    s.Models,
		Files:     storage.NewSnapshotter(s.Content, e.Logger),
		Executors: executor.Builtin(),
		Layouts:   layouts,
		Logger:    e.Logger,
	}), nil
}

// Orchestrator собирает Orchestrator для операций пользователя
// (остановка и удаление) без запуска его циклов.
func (e *Env) Orchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	s, err := e.Session(ctx)
	if err != nil {
		return nil, err
	}
	pub, err := e.Publisher(ctx)
	if err != nil {
		return nil, err
	}

	return orchestrator.New(orchestrator.Config{
		Nodes:      s.Nodes,
		Graphs:     s.Graphs,
		Fleet:      fleet.NewRegistry(s.Fleet, clock.New(), e.Logger),
		Commands:   pub,
		TaskFolder: e.Settings.TaskFolder(),
		Logger:     e.Logger,
	}), nil
}

// Close освобождает открытые ресурсы.
func (e *Env) Close() {
	if e.conn != nil {
		e.conn.Close()
	}
	if e.session != nil {
		e.session.Close()
	}
}
