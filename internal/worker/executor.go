package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/shaiso/Conveyor/internal/storage"
)

// LogFile — вывод процесса executor'а внутри рабочего пространства.
// Каталог log исключается из снимков проекта.
const LogFile = "log/executor.log"

// Launcher запускает executor node в отдельном процессе.
type Launcher interface {
	// Launch запускает процесс и ждёт его завершения.
	// started вызывается сразу после старта с pid процесса.
	Launch(ctx context.Context, ws *storage.Workspace, env []string, started func(pid int)) error
}

// ProcessLauncher — Launcher поверх os/exec.
//
// Каждый node выполняется в новом процессе с собственной группой,
// поэтому код рабочего пространства никогда не переиспользуется между node,
// а supervisor может завершить всю группу.
type ProcessLauncher struct{}

// Launch реализует Launcher.
func (ProcessLauncher) Launch(ctx context.Context, ws *storage.Workspace, env []string, started func(pid int)) error {
	command := ws.Executor.Command
	if len(command) == 0 {
		return fmt.Errorf("%w: %s", ErrNoCommand, ws.Executor.Name)
	}

	logPath := filepath.Join(ws.Dir, LogFile)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = ws.Dir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", command[0], err)
	}
	if started != nil {
		started(cmd.Process.Pid)
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: %s exited with code %d", ErrExecutionFailed, ws.Executor.Name, exitErr.ExitCode())
		}
		return fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	return nil
}
