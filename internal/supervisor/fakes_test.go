package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
)

type memNodes struct {
	mu      sync.Mutex
	nodes   map[uuid.UUID]*domain.Node
	updates int

	// onGet вызывается при перечитывании node.
	onGet func(n *domain.Node)
}

func newMemNodes(nodes ...*domain.Node) *memNodes {
	m := &memNodes{nodes: make(map[uuid.UUID]*domain.Node)}
	for _, n := range nodes {
		m.nodes[n.ID] = n
	}
	return m
}

func (m *memNodes) ListInProgress(_ context.Context, machine, image string) ([]domain.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Node
	for _, n := range m.nodes {
		if n.Status == domain.NodeStatusInProgress && n.ComputerAssigned == machine && n.DockerAssigned == image {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *memNodes) GetByID(_ context.Context, id uuid.UUID) (*domain.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if m.onGet != nil {
		m.onGet(n)
	}
	cp := *n
	return &cp, nil
}

func (m *memNodes) Update(_ context.Context, n *domain.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[n.ID]; !ok {
		return repo.ErrNotFound
	}
	cp := *n
	m.nodes[n.ID] = &cp
	m.updates++
	return nil
}

func (m *memNodes) get(id uuid.UUID) domain.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.nodes[id]
}

type fakeProcs struct {
	mu     sync.Mutex
	alive  map[int]bool
	killed []int
}

func newFakeProcs(alive ...int) *fakeProcs {
	p := &fakeProcs{alive: make(map[int]bool)}
	for _, pid := range alive {
		p.alive[pid] = true
	}
	return p
}

func (p *fakeProcs) Exists(_ context.Context, pid int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive[pid], nil
}

func (p *fakeProcs) Kill(pid int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = append(p.killed, pid)
	delete(p.alive, pid)
	return nil
}

type memFleet struct {
	mu         sync.Mutex
	machines   map[string]*domain.Machine
	containers map[string]*domain.Container
	samples    []domain.UsageSample
	current    int
	synced     int
}

func newMemFleet() *memFleet {
	return &memFleet{
		machines:   make(map[string]*domain.Machine),
		containers: make(map[string]*domain.Container),
	}
}

func (f *memFleet) UpsertMachine(_ context.Context, m *domain.Machine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.machines[m.Name] = &cp
	return nil
}

func (f *memFleet) UpsertContainer(_ context.Context, c *domain.Container) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.containers[c.Machine+"/"+c.Name] = &cp
	return nil
}

func (f *memFleet) SetUsage(_ context.Context, machine string, usage domain.Usage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.machines[machine]; ok {
		u := usage
		m.Usage = &u
	}
	f.current++
	return nil
}

func (f *memFleet) Heartbeat(_ context.Context, machine, image string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[machine+"/"+image]
	if !ok {
		return repo.ErrNotFound
	}
	c.LastActivity = at
	return nil
}

func (f *memFleet) AddUsageSample(_ context.Context, s *domain.UsageSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, *s)
	return nil
}

func (f *memFleet) ListContainersSince(_ context.Context, since time.Time) ([]domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Container
	for _, c := range f.containers {
		if !c.LastActivity.Before(since) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *memFleet) MarkSynced(_ context.Context, machine string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced++
	return nil
}

func (f *memFleet) sampleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

// fakeHost возвращает замеры по кругу.
type fakeHost struct {
	mu      sync.Mutex
	usages  []domain.Usage
	next    int
	machine domain.Machine

	// delay имитирует время замера.
	delay time.Duration

	// fail — ошибка каждого замера.
	fail  error
	calls int
}

func (h *fakeHost) Sample(_ context.Context) (domain.Usage, error) {
	time.Sleep(h.delay)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.fail != nil {
		return domain.Usage{}, h.fail
	}
	if len(h.usages) == 0 {
		return domain.Usage{}, nil
	}
	u := h.usages[h.next%len(h.usages)]
	h.next++
	return u, nil
}

func (h *fakeHost) sampleCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func (h *fakeHost) Describe(_ context.Context) (*domain.Machine, error) {
	m := h.machine
	return &m, nil
}
