package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/fleet"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Stores — сессия одного цикла.
type Stores struct {
	Nodes NodeStore
	Fleet fleet.Store

	// Close освобождает сессию. Может быть nil.
	Close func()
}

// RepoOpener открывает для каждого цикла отдельную сессию PostgreSQL.
func RepoOpener(dsn string) func(ctx context.Context) (*Stores, error) {
	return func(ctx context.Context) (*Stores, error) {
		s, err := repo.OpenSession(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return &Stores{Nodes: s.Nodes, Fleet: s.Fleet, Close: s.Close}, nil
	}
}

// Describer описывает ёмкость машины. Реализуется fleet.HostProbe.
type Describer interface {
	Describe(ctx context.Context) (*domain.Machine, error)
}

// Runner — долгоживущий потребитель очереди.
type Runner interface {
	Start(ctx context.Context) error
}

// Config — конфигурация Supervisor.
type Config struct {
	// Settings — конфигурация процесса.
	Settings *config.Config

	// Open открывает сессию цикла.
	Open func(ctx context.Context) (*Stores, error)

	// Host описывает машину и снимает её утилизацию.
	Host interface {
		Describer
		fleet.Probe
	}

	// Processes — процессы машины (по умолчанию HostProcesses).
	Processes ProcessTable

	// Commands — потребитель очереди supervisor'а. Может быть nil.
	Commands Runner

	// ReaperInterval и SyncInterval переопределяют интервалы из Settings.
	ReaperInterval time.Duration
	SyncInterval   time.Duration

	// SampleInterval переопределяет паузу между замерами.
	// Отрицательное значение — без паузы.
	SampleInterval time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Supervisor — health supervisor одной машины и образа.
type Supervisor struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger
}

// New создаёт Supervisor.
func New(cfg Config) *Supervisor {
	if cfg.Processes == nil {
		cfg.Processes = HostProcesses{}
	}
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = config.ReaperInterval
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = cfg.Settings.SyncInterval()
	}
	if cfg.SampleInterval == 0 {
		cfg.SampleInterval = cfg.Settings.SampleInterval()
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = telemetry.WithComponent(logger, domain.ComponentWorkerSupervisor, cfg.Settings.Hostname)

	return &Supervisor{cfg: cfg, clock: clk, logger: logger}
}

// Run регистрирует машину и контейнер, затем запускает циклы
// и работает до отмены ctx.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.register(ctx); err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Config{Clock: s.clock, Logger: s.logger})
	boundaries, err := s.schedule(sched)
	if err != nil {
		return err
	}
	defer func() {
		for _, b := range boundaries {
			b.Close()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Start(gctx)
		<-gctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return sched.Stop(stopCtx)
	})

	if s.cfg.Commands != nil {
		g.Go(func() error {
			err := s.cfg.Commands.Start(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	s.logger.Info("supervisor started",
		"docker", s.cfg.Settings.DockerImage,
		"docker_main", s.cfg.Settings.DockerMain,
	)

	err = g.Wait()
	s.logger.Info("supervisor stopped")
	return err
}

// register создаёт или обновляет машину и контейнер до старта циклов.
func (s *Supervisor) register(ctx context.Context) error {
	st := s.cfg.Settings

	stores, err := s.cfg.Open(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	if stores.Close != nil {
		defer stores.Close()
	}

	machine, err := s.cfg.Host.Describe(ctx)
	if err != nil {
		return fmt.Errorf("describe machine: %w", err)
	}
	machine.Name = st.Hostname
	machine.IP = st.IP
	machine.Port = st.Port
	machine.User = st.User

	registry := fleet.NewRegistry(stores.Fleet, s.clock, s.logger)
	if err := registry.RegisterMachine(ctx, machine); err != nil {
		return err
	}
	return registry.RegisterContainer(ctx, &domain.Container{
		Name:    st.DockerImage,
		Machine: st.Hostname,
		Ports:   st.PortRange,
	})
}

// schedule регистрирует циклы. Каждый цикл получает свою Boundary.
func (s *Supervisor) schedule(sched *scheduler.Scheduler) ([]*Boundary[*Stores], error) {
	st := s.cfg.Settings
	var boundaries []*Boundary[*Stores]

	newBoundary := func(name string) *Boundary[*Stores] {
		b := NewBoundary(BoundaryConfig[*Stores]{
			Name: name,
			Open: s.cfg.Open,
			Close: func(stores *Stores) {
				if stores.Close != nil {
					stores.Close()
				}
			},
			IsTransient: repo.IsConnectionError,
			Logger:      s.logger,
		})
		boundaries = append(boundaries, b)
		return b
	}

	reaper := NewReaper(ReaperConfig{
		Machine:   st.Hostname,
		Image:     st.DockerImage,
		Grace:     config.GraceWindow,
		Processes: s.cfg.Processes,
		Clock:     s.clock,
		Logger:    s.logger,
	})
	reaperJob := newBoundary("reaper").Job(func(ctx context.Context, stores *Stores) error {
		_, err := reaper.Tick(ctx, stores.Nodes)
		return err
	})
	if err := sched.Every("reaper", s.cfg.ReaperInterval, reaperJob); err != nil {
		return nil, err
	}

	if !st.DockerMain {
		return boundaries, nil
	}

	interval := s.cfg.SampleInterval
	if interval < 0 {
		interval = 0
	}
	sampler := NewSampler(SamplerConfig{
		Machine:  st.Hostname,
		Image:    st.DockerImage,
		Batch:    st.SampleBatch(),
		Interval: interval,
		Probe:    s.cfg.Host,
		Clock:    s.clock,
		Logger:   s.logger,
	})
	sched.Continuous("usage", interval, newBoundary("usage").Step(func(ctx context.Context, stores *Stores) error {
		_, err := sampler.RunBatch(ctx, fleet.NewRegistry(stores.Fleet, s.clock, s.logger))
		return err
	}))

	if st.SyncCmd == "" {
		return boundaries, nil
	}
	syncer, err := NewCommandSyncer(st.SyncCmd, st.Hostname, st.RootFolder, s.logger)
	if err != nil {
		return nil, err
	}
	syncJob := newBoundary("sync").Job(func(ctx context.Context, stores *Stores) error {
		return syncer.Sync(ctx, fleet.NewRegistry(stores.Fleet, s.clock, s.logger))
	})
	if err := sched.Every("sync", s.cfg.SyncInterval, syncJob); err != nil {
		return nil, err
	}

	return boundaries, nil
}
