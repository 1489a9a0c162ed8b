package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/google/shlex"
)

// SyncRecorder фиксирует успешную синхронизацию. Реализуется fleet.Registry.
type SyncRecorder interface {
	MarkSynced(ctx context.Context, machine string) error
}

// CommandSyncer синхронизирует файлы машины внешней командой.
//
// Команде передаются CONVEYOR_COMPUTER и CONVEYOR_ROOT_FOLDER.
type CommandSyncer struct {
	argv    []string
	machine string
	root    string
	logger  *slog.Logger
}

// NewCommandSyncer разбирает command по правилам shell.
func NewCommandSyncer(command, machine, root string, logger *slog.Logger) (*CommandSyncer, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse sync command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("sync command is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandSyncer{argv: argv, machine: machine, root: root, logger: logger}, nil
}

// Sync запускает команду и отмечает машину синхронизированной.
func (s *CommandSyncer) Sync(ctx context.Context, rec SyncRecorder) error {
	cmd := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)
	cmd.Env = append(os.Environ(),
		"CONVEYOR_COMPUTER="+s.machine,
		"CONVEYOR_ROOT_FOLDER="+s.root,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("sync command: %w: %s", err, strings.TrimSpace(string(out)))
	}

	if err := rec.MarkSynced(ctx, s.machine); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	s.logger.Debug("files synced")
	return nil
}
