package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
)

// memStore — ContentStore в памяти.
type memStore struct {
	mu        sync.Mutex
	blobs     map[uuid.UUID]domain.Blob
	manifest  []domain.ManifestEntry
	libraries []domain.Library
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[uuid.UUID]domain.Blob)}
}

func (s *memStore) ProjectHashes(_ context.Context, projectID uuid.UUID) (map[string]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hashes := make(map[string]uuid.UUID)
	for id, b := range s.blobs {
		if b.ProjectID == projectID {
			hashes[b.Hash] = id
		}
	}
	return hashes, nil
}

func (s *memStore) CreateBlob(_ context.Context, b *domain.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[b.ID] = *b
	return nil
}

func (s *memStore) AddManifest(_ context.Context, e *domain.ManifestEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest = append(s.manifest, *e)
	return nil
}

func (s *memStore) ListManifest(_ context.Context, graphID uuid.UUID) ([]domain.ManifestItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.ManifestItem
	for _, e := range s.manifest {
		if e.GraphID != graphID {
			continue
		}
		it := domain.ManifestItem{ManifestEntry: e}
		if e.BlobID != nil {
			it.Content = s.blobs[*e.BlobID].Content
		}
		items = append(items, it)
	}
	// как и в БД: порядок по пути, файлы могут идти раньше каталогов
	sort.Slice(items, func(i, j int) bool { return items[i].Path > items[j].Path })
	return items, nil
}

func (s *memStore) AddLibrary(_ context.Context, lib domain.Library) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.libraries = append(s.libraries, lib)
	return nil
}

func (s *memStore) ListLibraries(_ context.Context, graphID uuid.UUID) ([]domain.Library, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var libs []domain.Library
	for _, lib := range s.libraries {
		if lib.GraphID == graphID {
			libs = append(libs, lib)
		}
	}
	return libs, nil
}

func (s *memStore) CopyGraph(_ context.Context, src, dst uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.manifest {
		if e.GraphID == src {
			e.ID = uuid.New()
			e.GraphID = dst
			s.manifest = append(s.manifest, e)
		}
	}
	for _, lib := range s.libraries {
		if lib.GraphID == src {
			lib.GraphID = dst
			s.libraries = append(s.libraries, lib)
		}
	}
	return nil
}

func (s *memStore) manifestFor(graphID uuid.UUID) []domain.ManifestEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ManifestEntry
	for _, e := range s.manifest {
		if e.GraphID == graphID {
			out = append(out, e)
		}
	}
	return out
}

// memGetter отдаёт node и графы из карт.
type memGetter struct {
	nodes  map[uuid.UUID]*domain.Node
	graphs map[uuid.UUID]*domain.Graph
}

type nodeGetter struct{ *memGetter }

func (g nodeGetter) GetByID(_ context.Context, id uuid.UUID) (*domain.Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *n
	return &cp, nil
}

type graphGetter struct{ *memGetter }

func (g graphGetter) GetByID(_ context.Context, id uuid.UUID) (*domain.Graph, error) {
	gr, ok := g.graphs[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *gr
	return &cp, nil
}
