package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/fleet"
)

// UsageRecorder — приёмник замеров. Реализуется fleet.Registry.
type UsageRecorder interface {
	SetCurrentUsage(ctx context.Context, machine string, usage domain.Usage) error
	Heartbeat(ctx context.Context, machine, image string) error
	RecordUsage(ctx context.Context, machine string, samples []domain.Usage) (*domain.UsageSample, error)
}

// SamplerConfig — конфигурация Sampler.
type SamplerConfig struct {
	Machine string
	Image   string

	// Batch — число замеров в одной агрегированной записи.
	Batch int

	// Interval — пауза после каждого замера.
	Interval time.Duration

	Probe  fleet.Probe
	Clock  clock.Clock
	Logger *slog.Logger
}

// Sampler снимает утилизацию машины пачками.
type Sampler struct {
	machine  string
	image    string
	batch    int
	interval time.Duration
	probe    fleet.Probe
	clock    clock.Clock
	logger   *slog.Logger
}

// NewSampler создаёт Sampler.
func NewSampler(cfg SamplerConfig) *Sampler {
	batch := cfg.Batch
	if batch <= 0 {
		batch = 1
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sampler{
		machine:  cfg.Machine,
		image:    cfg.Image,
		batch:    batch,
		interval: cfg.Interval,
		probe:    cfg.Probe,
		clock:    clk,
		logger:   logger,
	}
}

// RunBatch снимает Batch замеров. Каждый замер сразу становится текущей
// утилизацией машины и обновляет heartbeat контейнера. После пачки
// записывается одна агрегированная запись со средним.
func (s *Sampler) RunBatch(ctx context.Context, rec UsageRecorder) (*domain.UsageSample, error) {
	samples := make([]domain.Usage, 0, s.batch)

	for i := 0; i < s.batch; i++ {
		usage, err := s.probe.Sample(ctx)
		if err != nil {
			return nil, fmt.Errorf("sample usage: %w", err)
		}
		if err := rec.SetCurrentUsage(ctx, s.machine, usage); err != nil {
			return nil, fmt.Errorf("set current usage: %w", err)
		}
		samples = append(samples, usage)

		if err := rec.Heartbeat(ctx, s.machine, s.image); err != nil {
			return nil, fmt.Errorf("container heartbeat: %w", err)
		}

		if err := s.sleep(ctx); err != nil {
			return nil, err
		}
	}

	sample, err := rec.RecordUsage(ctx, s.machine, samples)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("usage recorded", "samples", len(samples), "cpu", sample.Usage.CPU, "memory", sample.Usage.Memory)
	return sample, nil
}

func (s *Sampler) sleep(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}
	select {
	case <-s.clock.After(s.interval):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
