// Package fleet ведёт реестр машин флота, их контейнеров и замеров утилизации.
package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Store — хранилище флота. Реализуется repo.FleetRepo.
type Store interface {
	UpsertMachine(ctx context.Context, m *domain.Machine) error
	UpsertContainer(ctx context.Context, c *domain.Container) error
	SetUsage(ctx context.Context, machine string, usage domain.Usage) error
	Heartbeat(ctx context.Context, machine, image string, at time.Time) error
	AddUsageSample(ctx context.Context, s *domain.UsageSample) error
	ListContainersSince(ctx context.Context, since time.Time) ([]domain.Container, error)
	MarkSynced(ctx context.Context, machine string, at time.Time) error
}

// Registry — реестр флота поверх Store.
type Registry struct {
	store  Store
	clock  clock.Clock
	logger *slog.Logger
}

// NewRegistry создаёт Registry. clk == nil — реальные часы.
func NewRegistry(store Store, clk clock.Clock, logger *slog.Logger) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, clock: clk, logger: logger}
}

// RegisterMachine создаёт или обновляет машину по имени.
func (r *Registry) RegisterMachine(ctx context.Context, m *domain.Machine) error {
	if err := r.store.UpsertMachine(ctx, m); err != nil {
		return fmt.Errorf("register machine %s: %w", m.Name, err)
	}

	r.logger.Info("machine registered",
		"computer", m.Name,
		"gpu", m.GPU,
		"cpu", m.CPU,
		"memory", humanize.IBytes(m.Memory),
		"disk", humanize.IBytes(m.Disk),
		"address", fmt.Sprintf("%s:%d", m.IP, m.Port),
	)
	return nil
}

// RegisterContainer создаёт или обновляет контейнер по паре (имя, машина)
// и выставляет heartbeat в текущее время.
func (r *Registry) RegisterContainer(ctx context.Context, c *domain.Container) error {
	c.LastActivity = r.clock.Now().UTC()
	if err := r.store.UpsertContainer(ctx, c); err != nil {
		return fmt.Errorf("register container %s on %s: %w", c.Name, c.Machine, err)
	}

	r.logger.Info("container registered", "computer", c.Machine, "docker", c.Name, "ports", c.Ports.String())
	return nil
}

// SetCurrentUsage обновляет текущую утилизацию машины.
func (r *Registry) SetCurrentUsage(ctx context.Context, machine string, usage domain.Usage) error {
	if err := r.store.SetUsage(ctx, machine, usage); err != nil {
		return err
	}
	telemetry.MachineUsage.WithLabelValues("cpu").Set(usage.CPU)
	telemetry.MachineUsage.WithLabelValues("memory").Set(usage.Memory)
	telemetry.MachineUsage.WithLabelValues("disk").Set(usage.Disk)
	return nil
}

// Heartbeat обновляет время последней активности контейнера.
func (r *Registry) Heartbeat(ctx context.Context, machine, image string) error {
	return r.store.Heartbeat(ctx, machine, image, r.clock.Now().UTC())
}

// RecordUsage записывает один агрегированный замер — среднее пачки.
func (r *Registry) RecordUsage(ctx context.Context, machine string, samples []domain.Usage) (*domain.UsageSample, error) {
	sample := &domain.UsageSample{
		ID:      uuid.New(),
		Machine: machine,
		Usage:   domain.MeanUsage(samples),
		Time:    r.clock.Now().UTC(),
	}
	if err := r.store.AddUsageSample(ctx, sample); err != nil {
		return nil, fmt.Errorf("record usage of %s: %w", machine, err)
	}
	return sample, nil
}

// MarkSynced фиксирует успешную синхронизацию файлов машины.
func (r *Registry) MarkSynced(ctx context.Context, machine string) error {
	return r.store.MarkSynced(ctx, machine, r.clock.Now().UTC())
}

// Online возвращает контейнеры, чей heartbeat не старше within.
func (r *Registry) Online(ctx context.Context, within time.Duration) ([]domain.Container, error) {
	return r.store.ListContainersSince(ctx, r.clock.Now().UTC().Add(-within))
}
