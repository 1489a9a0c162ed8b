package fleet

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Probe снимает показатели машины.
type Probe interface {
	// Sample возвращает текущую утилизацию в процентах.
	Sample(ctx context.Context) (domain.Usage, error)
}

// HostProbe — Probe текущей машины: gopsutil для cpu, памяти и диска,
// nvidia-smi для ускорителей.
type HostProbe struct {
	// DiskPath — точка монтирования, чей диск учитывается.
	DiskPath string

	// GPUCommand — команда опроса ускорителей (по умолчанию nvidia-smi).
	GPUCommand string
}

// NewHostProbe создаёт HostProbe для диска с каталогом diskPath.
func NewHostProbe(diskPath string) *HostProbe {
	return &HostProbe{DiskPath: diskPath, GPUCommand: "nvidia-smi"}
}

// Sample реализует Probe.
func (p *HostProbe) Sample(ctx context.Context) (domain.Usage, error) {
	var usage domain.Usage

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return usage, fmt.Errorf("cpu percent: %w", err)
	}
	if len(percents) > 0 {
		usage.CPU = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return usage, fmt.Errorf("virtual memory: %w", err)
	}
	usage.Memory = vm.UsedPercent

	du, err := disk.UsageWithContext(ctx, p.DiskPath)
	if err != nil {
		return usage, fmt.Errorf("disk usage %s: %w", p.DiskPath, err)
	}
	usage.Disk = du.UsedPercent

	gpus, err := p.gpus(ctx)
	if err != nil {
		return usage, err
	}
	usage.GPU = gpus

	return usage, nil
}

// Describe возвращает ёмкость машины: ядра, память, диск и число ускорителей.
func (p *HostProbe) Describe(ctx context.Context) (*domain.Machine, error) {
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("cpu count: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}
	du, err := disk.UsageWithContext(ctx, p.DiskPath)
	if err != nil {
		return nil, fmt.Errorf("disk usage %s: %w", p.DiskPath, err)
	}
	gpus, err := p.gpus(ctx)
	if err != nil {
		return nil, err
	}

	return &domain.Machine{
		GPU:    len(gpus),
		CPU:    cores,
		Memory: vm.Total,
		Disk:   du.Total,
	}, nil
}

// gpus опрашивает ускорители. Машина без nvidia-smi — машина без ускорителей.
func (p *HostProbe) gpus(ctx context.Context) ([]domain.GPUUsage, error) {
	command := p.GPUCommand
	if command == "" {
		return nil, nil
	}

	out, err := exec.CommandContext(ctx, command,
		"--query-gpu=utilization.gpu,memory.used,memory.total",
		"--format=csv,noheader,nounits",
	).Output()
	if errors.Is(err, exec.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query gpus: %w", err)
	}
	return ParseGPUQuery(out), nil
}

// ParseGPUQuery разбирает вывод nvidia-smi в формате
// "utilization, memory.used, memory.total" по строке на ускоритель.
// Некорректные строки пропускаются.
func ParseGPUQuery(out []byte) []domain.GPUUsage {
	var gpus []domain.GPUUsage

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), ",")
		if len(parts) < 3 {
			continue
		}

		load, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			continue
		}
		used, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		total, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil || total <= 0 {
			continue
		}

		gpus = append(gpus, domain.GPUUsage{
			Load:   load,
			Memory: used / total * 100,
		})
	}
	return gpus
}
