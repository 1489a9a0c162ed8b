package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shaiso/Conveyor/internal/mq"
)

// Commands исполняет команды очереди supervisor'а.
type Commands struct {
	root   string
	procs  ProcessTable
	logger *slog.Logger
}

// NewCommands создаёт Commands. Удалять разрешено только внутри root.
func NewCommands(root string, procs ProcessTable, logger *slog.Logger) *Commands {
	if procs == nil {
		procs = HostProcesses{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Commands{root: root, procs: procs, logger: logger}
}

// Kill завершает процесс pid и его группу.
func (c *Commands) Kill(_ context.Context, pid int) error {
	if err := c.procs.Kill(pid); err != nil {
		return err
	}
	c.logger.Info("process killed", "pid", pid)
	return nil
}

// Remove удаляет файл или каталог. Отсутствующий путь не ошибка.
func (c *Commands) Remove(_ context.Context, path string) error {
	root, err := filepath.Abs(c.root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || !filepath.IsLocal(rel) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, path)
	}

	if _, err := os.Lstat(target); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("remove %s: %w", target, err)
	}
	c.logger.Info("path removed", "path", target)
	return nil
}

// Router возвращает обработчики process.kill и path.remove.
func (c *Commands) Router() mq.Router {
	return mq.Router{
		mq.MessageTypeProcessKill: func(ctx context.Context, d *mq.Delivery) error {
			p, err := mq.ParsePayload[mq.ProcessKillPayload](&d.Message)
			if err != nil {
				return mq.Permanent(err)
			}
			return c.Kill(ctx, p.PID)
		},
		mq.MessageTypePathRemove: func(ctx context.Context, d *mq.Delivery) error {
			p, err := mq.ParsePayload[mq.PathRemovePayload](&d.Message)
			if err != nil {
				return mq.Permanent(err)
			}
			if err := c.Remove(ctx, p.Path); err != nil {
				if errors.Is(err, ErrUnsafePath) {
					return mq.Permanent(err)
				}
				return err
			}
			return nil
		},
	}
}
