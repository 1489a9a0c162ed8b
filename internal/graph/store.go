package graph

import (
	"context"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/storage"
)

// ProjectStore — проекты. Реализуется repo.ProjectRepo.
type ProjectStore interface {
	GetByName(ctx context.Context, name string) (*domain.Project, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error)
}

// GraphStore — графы. Реализуется repo.GraphRepo.
type GraphStore interface {
	Create(ctx context.Context, g *domain.Graph) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Graph, error)
}

// NodeStore — node и рёбра. Реализуется repo.NodeRepo.
type NodeStore interface {
	Create(ctx context.Context, n *domain.Node) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Node, error)
	AddEdge(ctx context.Context, e domain.Edge) error
}

// ReportStore — отчёты. Реализуется repo.ReportRepo.
type ReportStore interface {
	Create(ctx context.Context, r *domain.Report) error
	LinkNode(ctx context.Context, reportID, nodeID uuid.UUID) error
}

// ModelStore — реестр моделей. Реализуется repo.ModelRepo.
type ModelStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Model, error)
	Update(ctx context.Context, m *domain.Model) error
	Repoint(ctx context.Context, projectID uuid.UUID, graphName string, graphID uuid.UUID) (int64, error)
}

// FileStore — снимок файлов проекта. Реализуется storage.Snapshotter.
type FileStore interface {
	Snapshot(ctx context.Context, folder string, graph *domain.Graph) (storage.SnapshotStats, error)
	CopyFrom(ctx context.Context, src uuid.UUID, dst *domain.Graph) error
}

// ExecutorRegistry — сведения об executors. Реализуется executor.Registry.
type ExecutorRegistry interface {
	IsTrainable(name string) bool
}

// ReportLayouts — раскладки отчётов. Реализуется report.Layouts.
type ReportLayouts interface {
	Get(name string) (map[string]any, bool)
}
