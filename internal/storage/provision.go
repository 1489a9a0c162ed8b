package storage

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/shlex"
)

// PackageManager — менеджер библиотек окружения воркера.
type PackageManager interface {
	// Installed возвращает установленную версию или "" если библиотеки нет.
	Installed(ctx context.Context, name string) (string, error)

	// Install устанавливает библиотеку нужной версии (пустая версия — любая).
	Install(ctx context.Context, name, version string) error
}

// PipManager — PackageManager поверх внешних команд show и install.
type PipManager struct {
	show    []string
	install []string
}

// NewPipManager разбирает командные строки show и install.
func NewPipManager(showCmd, installCmd string) (*PipManager, error) {
	show, err := shlex.Split(showCmd)
	if err != nil || len(show) == 0 {
		return nil, fmt.Errorf("SHOW_CMD %q: invalid command", showCmd)
	}
	install, err := shlex.Split(installCmd)
	if err != nil || len(install) == 0 {
		return nil, fmt.Errorf("INSTALL_CMD %q: invalid command", installCmd)
	}
	return &PipManager{show: show, install: install}, nil
}

// Installed реализует PackageManager.
func (p *PipManager) Installed(ctx context.Context, name string) (string, error) {
	args := append(append([]string{}, p.show[1:]...), name)
	out, err := exec.CommandContext(ctx, p.show[0], args...).Output()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// show завершается с ошибкой, если пакета нет
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query %s: %w", name, err)
	}
	return parseShowVersion(out), nil
}

// Install реализует PackageManager.
func (p *PipManager) Install(ctx context.Context, name, version string) error {
	target := name
	if version != "" {
		target = name + "==" + version
	}

	args := append(append([]string{}, p.install[1:]...), target)
	out, err := exec.CommandContext(ctx, p.install[0], args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("install %s: %w: %s", target, err, strings.TrimSpace(lastLines(out, 5)))
	}
	return nil
}

func parseShowVersion(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if v, ok := strings.CutPrefix(scanner.Text(), "Version:"); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func lastLines(out []byte, n int) string {
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
