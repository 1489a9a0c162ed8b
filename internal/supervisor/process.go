package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// ProcessTable — процессы текущей машины.
type ProcessTable interface {
	// Exists сообщает, жив ли процесс pid.
	Exists(ctx context.Context, pid int) (bool, error)

	// Kill принудительно завершает группу процессов pid и сам процесс.
	Kill(pid int) error
}

// HostProcesses — ProcessTable поверх gopsutil и kill(2).
type HostProcesses struct{}

// Exists реализует ProcessTable. pid <= 0 — процесса нет.
func (HostProcesses) Exists(ctx context.Context, pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	return process.PidExistsWithContext(ctx, int32(pid))
}

// Kill реализует ProcessTable. Отсутствие процесса ошибкой не считается.
func (HostProcesses) Kill(pid int) error {
	if pid <= 0 {
		return nil
	}

	groupErr := unix.Kill(-pid, unix.SIGKILL)
	procErr := unix.Kill(pid, unix.SIGKILL)

	for _, err := range []error{groupErr, procErr} {
		if err != nil && !errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("kill %d: %w", pid, err)
		}
	}
	return nil
}
