package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/storage"
)

type memNodes struct {
	mu      sync.Mutex
	nodes   map[uuid.UUID]domain.Node
	touches int

	// onUpdate вызывается после каждой записи.
	onUpdate func(n domain.Node)
}

func newMemNodes(nodes ...domain.Node) *memNodes {
	m := &memNodes{nodes: make(map[uuid.UUID]domain.Node)}
	for _, n := range nodes {
		m.nodes[n.ID] = n
	}
	return m
}

func (m *memNodes) GetByID(_ context.Context, id uuid.UUID) (*domain.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &n, nil
}

func (m *memNodes) Update(_ context.Context, n *domain.Node) error {
	m.mu.Lock()
	m.nodes[n.ID] = *n
	hook := m.onUpdate
	m.mu.Unlock()
	if hook != nil {
		hook(*n)
	}
	return nil
}

func (m *memNodes) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return repo.ErrNotFound
	}
	n.Touch(at)
	m.nodes[id] = n
	m.touches++
	return nil
}

func (m *memNodes) RecordPID(_ context.Context, id uuid.UUID, pid int, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok || n.Status != domain.NodeStatusInProgress {
		return false, nil
	}
	n.PID = pid
	n.Touch(at)
	m.nodes[id] = n
	return true, nil
}

func (m *memNodes) get(id uuid.UUID) domain.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes[id]
}

func (m *memNodes) set(n domain.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[n.ID] = n
}

func (m *memNodes) touchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touches
}

// fakeWorkspaces отдаёт рабочее пространство по свежей копии node.
type fakeWorkspaces struct {
	nodes    *memNodes
	graph    *domain.Graph
	pipeline func() *storage.Workspace
	err      error

	// onMaterialize вызывается перед сборкой рабочего пространства.
	onMaterialize func(nodeID uuid.UUID)

	materialized int
	attached     []string
}

func (f *fakeWorkspaces) Materialize(ctx context.Context, nodeID uuid.UUID) (*storage.Workspace, error) {
	f.materialized++
	if f.onMaterialize != nil {
		f.onMaterialize(nodeID)
	}
	return f.workspace(ctx, nodeID, "/tasks/"+nodeID.String())
}

func (f *fakeWorkspaces) Attach(ctx context.Context, nodeID uuid.UUID, dir string) (*storage.Workspace, error) {
	f.attached = append(f.attached, dir)
	return f.workspace(ctx, nodeID, dir)
}

func (f *fakeWorkspaces) workspace(ctx context.Context, nodeID uuid.UUID, dir string) (*storage.Workspace, error) {
	if f.err != nil {
		return nil, f.err
	}
	node, err := f.nodes.GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	ws := f.pipeline()
	ws.Dir = dir
	ws.Node = node
	ws.Graph = f.graph
	return ws, nil
}

type memModels struct {
	created []domain.Model
}

func (m *memModels) Create(_ context.Context, model *domain.Model) error {
	m.created = append(m.created, *model)
	return nil
}

type executeCall struct {
	queue  string
	nodeID uuid.UUID
	repeat int
}

type fakeEvents struct {
	mu       sync.Mutex
	executes []executeCall
	finished []mq.NodeFinishedPayload
}

func (f *fakeEvents) PublishExecute(_ context.Context, queue string, nodeID uuid.UUID, repeat int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executes = append(f.executes, executeCall{queue: queue, nodeID: nodeID, repeat: repeat})
	return nil
}

func (f *fakeEvents) PublishFinished(_ context.Context, payload mq.NodeFinishedPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, payload)
	return nil
}

// fakeLauncher имитирует процесс executor'а.
type fakeLauncher struct {
	pid int
	err error

	// release, если задан, держит "процесс" до закрытия канала.
	release chan struct{}

	calls int
	env   []string
}

func (f *fakeLauncher) Launch(ctx context.Context, _ *storage.Workspace, env []string, started func(pid int)) error {
	f.calls++
	f.env = env
	started(f.pid)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}
