package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/executor"
)

// dataLink — имя ссылки на внешний каталог данных внутри рабочего пространства.
const dataLink = "data"

// Workspace — подготовленное рабочее пространство node.
type Workspace struct {
	// Dir — корень рабочего пространства.
	Dir string

	Node     *domain.Node
	Graph    *domain.Graph
	Pipeline *engine.Pipeline

	// Executor — executor node, найденный в реестре рабочего пространства.
	Executor executor.Spec
}

// MaterializerConfig — конфигурация Materializer.
type MaterializerConfig struct {
	Nodes    NodeGetter
	Graphs   GraphGetter
	Store    ContentStore
	Packages PackageManager

	// Builtin — встроенные executors; манифест рабочего пространства
	// накладывается поверх них.
	Builtin *executor.Registry

	// TaskFolder — каталог, в котором создаются рабочие пространства.
	TaskFolder string

	Logger *slog.Logger
}

// Materializer восстанавливает дерево файлов графа на воркере.
type Materializer struct {
	nodes      NodeGetter
	graphs     GraphGetter
	store      ContentStore
	packages   PackageManager
	builtin    *executor.Registry
	taskFolder string
	logger     *slog.Logger

	registries *registryCache
}

// NewMaterializer создаёт Materializer.
func NewMaterializer(cfg MaterializerConfig) *Materializer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	builtin := cfg.Builtin
	if builtin == nil {
		builtin = executor.Builtin()
	}

	return &Materializer{
		nodes:      cfg.Nodes,
		graphs:     cfg.Graphs,
		store:      cfg.Store,
		packages:   cfg.Packages,
		builtin:    builtin,
		taskFolder: cfg.TaskFolder,
		logger:     logger,
		registries: newRegistryCache(),
	}
}

// Materialize восстанавливает рабочее пространство node в TaskFolder/<node-id>.
//
// Каталоги создаются раньше файлов, внешний каталог данных связывается
// ссылкой data, недостающие библиотеки устанавливаются. Если executor
// node отсутствует в реестре рабочего пространства — ErrExecutorNotFound.
func (m *Materializer) Materialize(ctx context.Context, nodeID uuid.UUID) (*Workspace, error) {
	node, graph, pipeline, err := m.load(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(m.taskFolder, node.ID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	items, err := m.store.ListManifest(ctx, graph.ID)
	if err != nil {
		return nil, fmt.Errorf("list manifest: %w", err)
	}
	if err := Replay(dir, items); err != nil {
		return nil, err
	}

	if pipeline.Info.DataFolder != "" {
		if err := linkData(dir, pipeline.Info.DataFolder); err != nil {
			return nil, err
		}
	}

	if err := m.provision(ctx, graph.ID); err != nil {
		return nil, err
	}

	return m.bind(node, graph, pipeline, dir, manifestDigest(items))
}

// Attach готовит рабочее пространство из уже существующего каталога dir
// без восстановления файлов и установки библиотек. Используется для
// debug node, выполняемых из каталога проекта.
func (m *Materializer) Attach(ctx context.Context, nodeID uuid.UUID, dir string) (*Workspace, error) {
	node, graph, pipeline, err := m.load(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	digest, err := fileDigest(filepath.Join(dir, executor.ManifestFile))
	if err != nil {
		return nil, err
	}
	return m.bind(node, graph, pipeline, dir, digest)
}

func (m *Materializer) load(ctx context.Context, nodeID uuid.UUID) (*domain.Node, *domain.Graph, *engine.Pipeline, error) {
	node, err := m.nodes.GetByID(ctx, nodeID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get node %s: %w", nodeID, err)
	}
	graph, err := m.graphs.GetByID(ctx, node.GraphID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get dag %s: %w", node.GraphID, err)
	}
	pipeline, err := engine.Parse([]byte(graph.Config))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse dag %s config: %w", graph.ID, err)
	}
	return node, graph, pipeline, nil
}

// bind находит executor node в реестре рабочего пространства.
func (m *Materializer) bind(node *domain.Node, graph *domain.Graph, pipeline *engine.Pipeline, dir, digest string) (*Workspace, error) {
	registry, err := m.registries.get(dir, digest, m.builtin)
	if err != nil {
		return nil, err
	}

	spec, ok := pipeline.Executor(node.Executor)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not declared in dag %s", ErrExecutorNotFound, node.Executor, graph.ID)
	}
	found, ok := registry.Get(spec.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutorNotFound, spec.Type)
	}

	return &Workspace{
		Dir:      dir,
		Node:     node,
		Graph:    graph,
		Pipeline: pipeline,
		Executor: found,
	}, nil
}

// provision устанавливает библиотеки, версия которых отличается от объявленной.
func (m *Materializer) provision(ctx context.Context, graphID uuid.UUID) error {
	libs, err := m.store.ListLibraries(ctx, graphID)
	if err != nil {
		return fmt.Errorf("list libraries: %w", err)
	}
	if m.packages == nil {
		return nil
	}

	for _, lib := range libs {
		installed, err := m.packages.Installed(ctx, lib.Name)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrProvisionFailed, lib.Name, err)
		}
		if installed != "" && (lib.Version == "" || installed == lib.Version) {
			continue
		}

		m.logger.Info("installing library",
			"library", lib.Name,
			"version", lib.Version,
			"installed", installed,
		)
		if err := m.packages.Install(ctx, lib.Name, lib.Version); err != nil {
			return fmt.Errorf("%w: %v", ErrProvisionFailed, err)
		}
	}
	return nil
}

// Replay восстанавливает манифест в каталоге dir.
// Строки каталогов применяются раньше строк файлов; порядок внутри
// каждой группы сохраняется.
func Replay(dir string, items []domain.ManifestItem) error {
	sorted := make([]domain.ManifestItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].BlobID == nil && sorted[j].BlobID != nil
	})

	for _, it := range sorted {
		if !filepath.IsLocal(filepath.FromSlash(it.Path)) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, it.Path)
		}
		target := filepath.Join(dir, filepath.FromSlash(it.Path))

		if it.BlobID == nil {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", it.Path, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", it.Path, err)
		}
		if err := os.WriteFile(target, it.Content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", it.Path, err)
		}
	}
	return nil
}

// linkData создаёт ссылку data на внешний каталог данных.
// Уже существующая ссылка не ошибка.
func linkData(dir, target string) error {
	link := filepath.Join(dir, dataLink)
	if _, err := os.Lstat(link); err == nil {
		return nil
	}
	if err := os.Symlink(target, link); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("link data folder: %w", err)
	}
	return nil
}

// manifestDigest — sha256 путей и содержимого манифеста.
func manifestDigest(items []domain.ManifestItem) string {
	sorted := make([]domain.ManifestItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := sha256.New()
	for _, it := range sorted {
		h.Write([]byte(it.Path))
		h.Write([]byte{0})
		h.Write(it.Content)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func fileDigest(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return contentHash(data), nil
}

// registryCache хранит реестры executors по (каталог, digest содержимого).
// Повторно материализованное рабочее пространство с другим содержимым
// получает новый реестр.
type registryCache struct {
	mu      sync.Mutex
	entries map[string]*executor.Registry
}

func newRegistryCache() *registryCache {
	return &registryCache{entries: make(map[string]*executor.Registry)}
}

func (c *registryCache) get(dir, digest string, builtin *executor.Registry) (*executor.Registry, error) {
	key := dir + "\x00" + digest

	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.entries[key]; ok {
		return r, nil
	}

	local, err := executor.LoadManifest(dir)
	if err != nil {
		return nil, err
	}
	merged := builtin.Overlay(local)

	// старые записи того же каталога больше не нужны
	for k := range c.entries {
		if len(k) > len(dir) && k[:len(dir)+1] == dir+"\x00" {
			delete(c.entries, k)
		}
	}
	c.entries[key] = merged
	return merged, nil
}
