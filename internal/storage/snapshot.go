package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// IgnoreFile — файл правил исключения в корне проекта.
const IgnoreFile = "file.ignore.txt"

// builtinIgnore — шаблоны, исключаемые всегда.
var builtinIgnore = []string{"log", "data", "__pycache__", "*.pyc"}

// SnapshotStats — итог одного снимка.
type SnapshotStats struct {
	Dirs        int
	Files       int
	NewBlobs    int
	ReusedBlobs int
	Libraries   int
}

// Snapshotter снимает дерево файлов проекта в ContentStore.
type Snapshotter struct {
	store  ContentStore
	logger *slog.Logger
}

// NewSnapshotter создаёт Snapshotter.
func NewSnapshotter(store ContentStore, logger *slog.Logger) *Snapshotter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshotter{store: store, logger: logger}
}

// Snapshot снимает каталог folder как дерево файлов графа.
//
// Каталоги записываются строками манифеста без blob. Для файла
// считается sha256 содержимого; blob с тем же хешем в проекте
// переиспользуется, иначе создаётся новый. Библиотеки ищутся только
// в файлах, давших новый blob.
func (s *Snapshotter) Snapshot(ctx context.Context, folder string, graph *domain.Graph) (SnapshotStats, error) {
	var stats SnapshotStats

	matcher, err := loadIgnore(folder)
	if err != nil {
		return stats, err
	}

	hashes, err := s.store.ProjectHashes(ctx, graph.ProjectID)
	if err != nil {
		return stats, fmt.Errorf("load project hashes: %w", err)
	}

	var fresh []string

	err = filepath.WalkDir(folder, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(folder, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if matcher.MatchesPath(rel) || (d.IsDir() && matcher.MatchesPath(rel+"/")) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			stats.Dirs++
			return s.store.AddManifest(ctx, &domain.ManifestEntry{
				ID:      uuid.New(),
				GraphID: graph.ID,
				Path:    rel,
				IsDir:   true,
			})
		}
		if !d.Type().IsRegular() {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		hash := contentHash(content)

		blobID, known := hashes[hash]
		if known {
			stats.ReusedBlobs++
			telemetry.SnapshotBlobs.WithLabelValues("reused").Inc()
		} else {
			blobID = uuid.New()
			err := s.store.CreateBlob(ctx, &domain.Blob{
				ID:        blobID,
				Hash:      hash,
				Content:   content,
				ProjectID: graph.ProjectID,
				GraphID:   graph.ID,
				CreatedAt: time.Now().UTC(),
			})
			if err != nil {
				return err
			}
			hashes[hash] = blobID
			fresh = append(fresh, path)
			stats.NewBlobs++
			telemetry.SnapshotBlobs.WithLabelValues("stored").Inc()
		}

		stats.Files++
		return s.store.AddManifest(ctx, &domain.ManifestEntry{
			ID:      uuid.New(),
			GraphID: graph.ID,
			Path:    rel,
			BlobID:  &blobID,
		})
	})
	if err != nil {
		return stats, fmt.Errorf("snapshot %s: %w", folder, err)
	}

	libs, err := DetectLibraries(fresh)
	if err != nil {
		return stats, err
	}
	for _, lib := range libs {
		lib.GraphID = graph.ID
		if err := s.store.AddLibrary(ctx, lib); err != nil {
			return stats, err
		}
	}
	stats.Libraries = len(libs)

	s.logger.Info("project snapshot stored",
		"dag_id", graph.ID,
		"dirs", stats.Dirs,
		"files", stats.Files,
		"new_blobs", stats.NewBlobs,
		"reused_blobs", stats.ReusedBlobs,
		"libraries", stats.Libraries,
	)

	return stats, nil
}

// CopyFrom переносит манифест и библиотеки графа src в граф dst.
func (s *Snapshotter) CopyFrom(ctx context.Context, src uuid.UUID, dst *domain.Graph) error {
	if err := s.store.CopyGraph(ctx, src, dst.ID); err != nil {
		return fmt.Errorf("copy files from %s: %w", src, err)
	}
	return nil
}

// loadIgnore читает file.ignore.txt (создавая пустой при отсутствии)
// и добавляет встроенные шаблоны.
func loadIgnore(folder string) (*ignore.GitIgnore, error) {
	path := filepath.Join(folder, IgnoreFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return nil, fmt.Errorf("create %s: %w", IgnoreFile, err)
		}
	}

	matcher, err := ignore.CompileIgnoreFileAndLines(path, builtinIgnore...)
	if err != nil {
		return nil, fmt.Errorf("compile ignore rules: %w", err)
	}
	return matcher, nil
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
