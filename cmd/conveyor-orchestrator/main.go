// Conveyor Orchestrator — отправляет готовые node графов на машины флота.
//
// Orchestrator:
//   - Проверяет графы с незавершёнными node (polling)
//   - Реагирует на node.finished от воркеров
//   - Пропускает node с неуспешными зависимостями
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/fleet"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger("conveyor-orchestrator")
	logger.Info("starting conveyor-orchestrator")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	session := repo.NewSession(pool)
	logger.Info("database connected")

	conn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	if err := mq.SetupTopology(ctx, conn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	orch := orchestrator.New(orchestrator.Config{
		Nodes:      session.Nodes,
		Graphs:     session.Graphs,
		Fleet:      fleet.NewRegistry(session.Fleet, clock.New(), logger),
		Commands:   mq.NewPublisher(conn, logger),
		Conn:       conn,
		TaskFolder: cfg.TaskFolder(),
		Logger:     logger,
	})
	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	port := ":8083"
	if v := os.Getenv("ORCH_PORT"); v != "" {
		port = ":" + v
	}
	go func() {
		if err := telemetry.Serve(ctx, port, logger); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	orch.Stop()
	logger.Info("conveyor-orchestrator stopped")
}
