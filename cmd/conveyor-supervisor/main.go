// Conveyor Supervisor — health supervisor машины и образа.
//
// Supervisor:
//   - Регистрирует машину и контейнер во флоте
//   - Переводит в Failed node, чей процесс пропал
//   - Снимает утилизацию машины и синхронизирует файлы (DOCKER_MAIN)
//   - Выполняет команды своей очереди: завершение процесса, удаление пути
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/fleet"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/supervisor"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger("conveyor-supervisor")
	logger.Info("starting conveyor-supervisor")

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

	conn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	queue := cfg.SupervisorQueue()
	if err := mq.DeclareMachineQueue(ctx, conn, queue); err != nil {
		logger.Error("failed to declare supervisor queue", "queue", queue, "error", err)
		os.Exit(1)
	}

	procs := supervisor.HostProcesses{}
	commands := supervisor.NewCommands(cfg.RootFolder, procs, logger)
	consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
		Queue:    queue,
		Handler:  commands.Router().Handle,
		Prefetch: 1,
		Tag:      "supervisor@" + cfg.Hostname,
	})

	sup := supervisor.New(supervisor.Config{
		Settings:  cfg,
		Open:      supervisor.RepoOpener(cfg.DBURL),
		Host:      fleet.NewHostProbe(cfg.RootFolder),
		Processes: procs,
		Commands:  consumer,
		Logger:    logger,
	})

	port := ":8085"
	if v := os.Getenv("SUPERVISOR_PORT"); v != "" {
		port = ":" + v
	}
	go func() {
		if err := telemetry.Serve(ctx, port, logger); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	if err := sup.Run(ctx); err != nil {
		logger.Error("supervisor stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("conveyor-supervisor stopped")
}
