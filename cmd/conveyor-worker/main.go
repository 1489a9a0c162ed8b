// Conveyor Worker — выполняет node, назначенные машине.
//
// Использование:
//
//	conveyor-worker [INDEX]
//
// INDEX — номер воркера на машине (по умолчанию 0), задаёт личную
// очередь <host>_<image>_<INDEX> и порт /healthz + /metrics
// (WORKER_PORT + INDEX).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/storage"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/worker"
)

const defaultWorkerPort = 8084

func main() {
	logger := telemetry.SetupLogger("conveyor-worker")

	index := 0
	if len(os.Args) > 1 {
		n, err := strconv.Atoi(os.Args[1])
		if err != nil || n < 0 {
			logger.Error("invalid worker index", "value", os.Args[1])
			os.Exit(2)
		}
		index = n
	}
	logger = logger.With("worker_index", index)
	logger.Info("starting conveyor-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.EnsureFolders(); err != nil {
		logger.Error("failed to create folders", "error", err)
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

	packages, err := storage.NewPipManager(cfg.ShowCmd, cfg.InstallCmd)
	if err != nil {
		logger.Error("invalid package manager commands", "error", err)
		os.Exit(1)
	}

	materializer := storage.NewMaterializer(storage.MaterializerConfig{
		Nodes:      session.Nodes,
		Graphs:     session.Graphs,
		Store:      session.Content,
		Packages:   packages,
		Builtin:    executor.Builtin(),
		TaskFolder: cfg.TaskFolder(),
		Logger:     logger,
	})

	w := worker.New(worker.Config{
		Settings:   cfg,
		Index:      index,
		Nodes:      session.Nodes,
		Workspaces: materializer,
		Models:     session.Models,
		Events:     mq.NewPublisher(conn, logger),
		Conn:       conn,
		Logger:     logger,
	})
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	port := defaultWorkerPort
	if v := os.Getenv("WORKER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}
	go func() {
		if err := telemetry.Serve(ctx, fmt.Sprintf(":%d", port+index), logger); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	w.Stop()
	logger.Info("conveyor-worker stopped")
}
