package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"

	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Job — одна итерация периодического цикла.
type Job func(ctx context.Context)

// Step — итерация непрерывного цикла. Ошибка означает, что перед
// следующей итерацией нужна пауза.
type Step func(ctx context.Context) error

// defaultFailurePause — пауза после неудачной итерации непрерывного
// цикла, если цикл не задал свою.
const defaultFailurePause = time.Second

// Scheduler запускает периодические и непрерывные циклы.
//
// Итерации одного цикла строго последовательны: если итерация не
// завершилась к следующему тику, тик пропускается. Паника итерации
// логируется и не останавливает цикл.
type Scheduler struct {
	cron   *cron.Cron
	clock  clock.Clock
	logger *slog.Logger

	continuous []namedJob

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	ctx        context.Context
}

type namedJob struct {
	name  string
	pause time.Duration
	step  Step
}

// Config — конфигурация Scheduler.
type Config struct {
	// Clock отсчитывает паузы непрерывных циклов.
	Clock  clock.Clock
	Logger *slog.Logger
}

// New создаёт Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	cl := cronLogger{logger: logger}

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(specParser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		clock:  clk,
		logger: logger,
		ctx:    context.Background(),
	}
}

// Every регистрирует цикл с фиксированным интервалом.
// Регистрировать циклы нужно до Start.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("loop %s: interval must be positive", name)
	}

	_, err := s.cron.AddFunc(EverySpec(interval), func() {
		telemetry.LoopIterations.WithLabelValues(name).Inc()
		job(s.ctx)
	})
	if err != nil {
		return fmt.Errorf("loop %s: %w", name, err)
	}
	return nil
}

// Continuous регистрирует цикл без интервала: после успешной итерации
// следующая начинается сразу, паузы задаёт сама итерация. После ошибки
// или паники цикл ждёт pause; без pause — defaultFailurePause.
func (s *Scheduler) Continuous(name string, pause time.Duration, step Step) {
	if pause <= 0 {
		pause = defaultFailurePause
	}
	s.continuous = append(s.continuous, namedJob{name: name, pause: pause, step: step})
}

// Start запускает все зарегистрированные циклы.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.ctx = ctx
	s.cancelFunc = cancel

	s.cron.Start()

	for _, nj := range s.continuous {
		s.wg.Add(1)
		go s.runContinuous(ctx, nj)
	}

	s.logger.Info("scheduler started",
		"periodic", len(s.cron.Entries()),
		"continuous", len(s.continuous),
	)
}

// Stop останавливает циклы и ждёт завершения текущих итераций
// или отмены ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	cronDone := s.cron.Stop().Done()

	loopsDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(loopsDone)
	}()

	for cronDone != nil || loopsDone != nil {
		select {
		case <-cronDone:
			cronDone = nil
		case <-loopsDone:
			loopsDone = nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) runContinuous(ctx context.Context, nj namedJob) {
	defer s.wg.Done()

	for ctx.Err() == nil {
		telemetry.LoopIterations.WithLabelValues(nj.name).Inc()
		if s.runOnce(ctx, nj) {
			continue
		}
		select {
		case <-ctx.Done():
		case <-s.clock.After(nj.pause):
		}
	}
}

// runOnce выполняет итерацию, перехватывая панику.
// Возвращает false, если итерация завершилась ошибкой или паникой.
func (s *Scheduler) runOnce(ctx context.Context, nj namedJob) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.LoopFailures.WithLabelValues(nj.name).Inc()
			s.logger.Error("loop iteration panicked", "loop", nj.name, "panic", r)
			ok = false
		}
	}()
	return nj.step(ctx) == nil
}
