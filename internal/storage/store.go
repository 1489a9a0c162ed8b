package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
)

// ContentStore — хранилище blobs, манифестов и библиотек.
// Реализуется repo.ContentStore.
type ContentStore interface {
	ProjectHashes(ctx context.Context, projectID uuid.UUID) (map[string]uuid.UUID, error)
	CreateBlob(ctx context.Context, b *domain.Blob) error
	AddManifest(ctx context.Context, e *domain.ManifestEntry) error
	ListManifest(ctx context.Context, graphID uuid.UUID) ([]domain.ManifestItem, error)
	AddLibrary(ctx context.Context, lib domain.Library) error
	ListLibraries(ctx context.Context, graphID uuid.UUID) ([]domain.Library, error)
	CopyGraph(ctx context.Context, src, dst uuid.UUID) error
}

// NodeGetter загружает node по ID.
type NodeGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Node, error)
}

// GraphGetter загружает граф по ID.
type GraphGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Graph, error)
}
