package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// NodeStore — node, которые видит reaper. Реализуется repo.NodeRepo.
type NodeStore interface {
	ListInProgress(ctx context.Context, machine, image string) ([]domain.Node, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Node, error)
	Update(ctx context.Context, n *domain.Node) error
}

// ReaperConfig — конфигурация Reaper.
type ReaperConfig struct {
	Machine string
	Image   string

	// Grace — сколько node без процесса может оставаться InProgress
	// после последней активности.
	Grace time.Duration

	Processes ProcessTable
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Reaper переводит в Failed node, чей процесс пропал.
type Reaper struct {
	machine string
	image   string
	grace   time.Duration
	procs   ProcessTable
	clock   clock.Clock
	logger  *slog.Logger
}

// NewReaper создаёт Reaper.
func NewReaper(cfg ReaperConfig) *Reaper {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	procs := cfg.Processes
	if procs == nil {
		procs = HostProcesses{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reaper{
		machine: cfg.Machine,
		image:   cfg.Image,
		grace:   cfg.Grace,
		procs:   procs,
		clock:   clk,
		logger:  logger,
	}
}

// Tick проверяет node машины и образа, возвращает число переведённых в Failed.
//
// Node без живого процесса, активный в пределах grace, пропускается:
// он мог перезапуститься сам. Остальные перечитываются из store, и
// решение принимается по свежей копии.
func (r *Reaper) Tick(ctx context.Context, store NodeStore) (int, error) {
	nodes, err := store.ListInProgress(ctx, r.machine, r.image)
	if err != nil {
		return 0, fmt.Errorf("list in-progress nodes: %w", err)
	}

	reaped := 0
	for i := range nodes {
		ok, err := r.reap(ctx, store, &nodes[i])
		if err != nil {
			return reaped, &NodeError{NodeID: nodes[i].ID, Err: err}
		}
		if ok {
			reaped++
		}
	}
	return reaped, nil
}

func (r *Reaper) reap(ctx context.Context, store NodeStore, listed *domain.Node) (bool, error) {
	alive, err := r.procs.Exists(ctx, listed.PID)
	if err != nil {
		return false, fmt.Errorf("check pid %d: %w", listed.PID, err)
	}
	if alive {
		return false, nil
	}

	now := r.clock.Now().UTC()
	if listed.IdleFor(now) < r.grace {
		return false, nil
	}

	node, err := store.GetByID(ctx, listed.ID)
	if err != nil {
		return false, fmt.Errorf("refetch: %w", err)
	}
	if node.Status != domain.NodeStatusInProgress {
		return false, nil
	}

	alive, err = r.procs.Exists(ctx, node.PID)
	if err != nil {
		return false, fmt.Errorf("check pid %d: %w", node.PID, err)
	}
	if alive {
		return false, nil
	}

	if err := r.procs.Kill(node.PID); err != nil {
		r.logger.Warn("kill lingering process group failed", "pid", node.PID, "error", err)
	}

	node.MarkFailed(now)
	if err := store.Update(ctx, node); err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}

	telemetry.NodesReaped.Inc()
	telemetry.WithNodeID(r.logger, node.ID.String()).Error(
		"process does not exist, node set to failed", "pid", node.PID)
	return true, nil
}
