package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
)

// ContentStore — репозиторий blobs, manifest и libraries.
//
// Blob дедуплицируется по хешу в пределах проекта; манифест и библиотеки
// всегда привязаны к графу.
type ContentStore struct {
	db DBTX
}

// NewContentStore создаёт новый ContentStore.
func NewContentStore(db DBTX) *ContentStore {
	return &ContentStore{db: db}
}

// ProjectHashes возвращает карту хеш → blob для всех blobs проекта.
func (s *ContentStore) ProjectHashes(ctx context.Context, projectID uuid.UUID) (map[string]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT hash, id FROM blobs WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]uuid.UUID)
	for rows.Next() {
		var hash string
		var id uuid.UUID
		if err := rows.Scan(&hash, &id); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}
		hashes[hash] = id
	}
	return hashes, rows.Err()
}

// CreateBlob сохраняет новый blob.
func (s *ContentStore) CreateBlob(ctx context.Context, b *domain.Blob) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO blobs (id, hash, content, project_id, graph_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, b.Hash, b.Content, b.ProjectID, b.GraphID, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert blob: %w", err)
	}
	return nil
}

// AddManifest добавляет строку манифеста.
func (s *ContentStore) AddManifest(ctx context.Context, e *domain.ManifestEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO manifest (id, graph_id, path, blob_id, is_dir)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.GraphID, e.Path, e.BlobID, e.IsDir)
	if err != nil {
		return fmt.Errorf("insert manifest entry: %w", err)
	}
	return nil
}

// ListManifest возвращает манифест графа вместе с содержимым blobs.
func (s *ContentStore) ListManifest(ctx context.Context, graphID uuid.UUID) ([]domain.ManifestItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT m.id, m.graph_id, m.path, m.blob_id, m.is_dir, b.content
		FROM manifest m
		LEFT JOIN blobs b ON b.id = m.blob_id
		WHERE m.graph_id = $1
		ORDER BY m.path ASC
	`, graphID)
	if err != nil {
		return nil, fmt.Errorf("list manifest: %w", err)
	}
	defer rows.Close()

	var items []domain.ManifestItem
	for rows.Next() {
		var it domain.ManifestItem
		if err := rows.Scan(&it.ID, &it.GraphID, &it.Path, &it.BlobID, &it.IsDir, &it.Content); err != nil {
			return nil, fmt.Errorf("scan manifest entry: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// AddLibrary записывает найденную зависимость графа.
func (s *ContentStore) AddLibrary(ctx context.Context, lib domain.Library) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO libraries (graph_id, library, version) VALUES ($1, $2, $3)
	`, lib.GraphID, lib.Name, lib.Version)
	if err != nil {
		return fmt.Errorf("insert library: %w", err)
	}
	return nil
}

// ListLibraries возвращает зависимости графа.
func (s *ContentStore) ListLibraries(ctx context.Context, graphID uuid.UUID) ([]domain.Library, error) {
	rows, err := s.db.Query(ctx, `
		SELECT graph_id, library, version FROM libraries WHERE graph_id = $1 ORDER BY library
	`, graphID)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	defer rows.Close()

	var libs []domain.Library
	for rows.Next() {
		var lib domain.Library
		if err := rows.Scan(&lib.GraphID, &lib.Name, &lib.Version); err != nil {
			return nil, fmt.Errorf("scan library: %w", err)
		}
		libs = append(libs, lib)
	}
	return libs, rows.Err()
}

// CopyGraph копирует манифест и библиотеки графа src в граф dst.
// Blobs не копируются: новый манифест ссылается на те же blobs.
func (s *ContentStore) CopyGraph(ctx context.Context, src, dst uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO manifest (id, graph_id, path, blob_id, is_dir)
		SELECT gen_random_uuid(), $2, path, blob_id, is_dir
		FROM manifest
		WHERE graph_id = $1
	`, src, dst)
	if err != nil {
		return fmt.Errorf("copy manifest: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO libraries (graph_id, library, version)
		SELECT $2, library, version
		FROM libraries
		WHERE graph_id = $1
	`, src, dst)
	if err != nil {
		return fmt.Errorf("copy libraries: %w", err)
	}
	return nil
}
