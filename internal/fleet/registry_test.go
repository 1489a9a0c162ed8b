package fleet

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/domain"
)

type memStore struct {
	machines   map[string]domain.Machine
	containers map[[2]string]domain.Container
	samples    []domain.UsageSample
	synced     map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		machines:   map[string]domain.Machine{},
		containers: map[[2]string]domain.Container{},
		synced:     map[string]time.Time{},
	}
}

func (s *memStore) UpsertMachine(_ context.Context, m *domain.Machine) error {
	s.machines[m.Name] = *m
	return nil
}

func (s *memStore) UpsertContainer(_ context.Context, c *domain.Container) error {
	s.containers[[2]string{c.Machine, c.Name}] = *c
	return nil
}

func (s *memStore) SetUsage(_ context.Context, machine string, usage domain.Usage) error {
	m := s.machines[machine]
	m.Usage = &usage
	s.machines[machine] = m
	return nil
}

func (s *memStore) Heartbeat(_ context.Context, machine, image string, at time.Time) error {
	key := [2]string{machine, image}
	c := s.containers[key]
	c.LastActivity = at
	s.containers[key] = c
	return nil
}

func (s *memStore) AddUsageSample(_ context.Context, sample *domain.UsageSample) error {
	s.samples = append(s.samples, *sample)
	return nil
}

func (s *memStore) ListContainersSince(_ context.Context, since time.Time) ([]domain.Container, error) {
	var out []domain.Container
	for _, c := range s.containers {
		if !c.LastActivity.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) MarkSynced(_ context.Context, machine string, at time.Time) error {
	s.synced[machine] = at
	return nil
}

func TestRegistry_RegisterAndHeartbeat(t *testing.T) {
	store := newMemStore()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	r := NewRegistry(store, clk, nil)
	ctx := context.Background()

	require.NoError(t, r.RegisterMachine(ctx, &domain.Machine{Name: "gpu-01", GPU: 2, CPU: 16, Memory: 64 << 30}))
	require.NoError(t, r.RegisterMachine(ctx, &domain.Machine{Name: "gpu-01", GPU: 4, CPU: 16}))
	assert.Len(t, store.machines, 1)
	assert.Equal(t, 4, store.machines["gpu-01"].GPU)

	c := &domain.Container{Name: "default", Machine: "gpu-01", Ports: domain.PortRange{Low: 29500, High: 29599}}
	require.NoError(t, r.RegisterContainer(ctx, c))
	assert.Equal(t, clk.Now().UTC(), store.containers[[2]string{"gpu-01", "default"}].LastActivity)

	clk.Add(30 * time.Second)
	require.NoError(t, r.Heartbeat(ctx, "gpu-01", "default"))
	assert.Equal(t, clk.Now().UTC(), store.containers[[2]string{"gpu-01", "default"}].LastActivity)

	online, err := r.Online(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.Len(t, online, 1)

	clk.Add(time.Minute)
	online, err = r.Online(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.Empty(t, online)
}

func TestRegistry_RecordUsageWritesMean(t *testing.T) {
	store := newMemStore()
	r := NewRegistry(store, clock.NewMock(), nil)

	sample, err := r.RecordUsage(context.Background(), "gpu-01", []domain.Usage{
		{CPU: 10, Memory: 40, Disk: 50, GPU: []domain.GPUUsage{{Load: 20, Memory: 10}}},
		{CPU: 30, Memory: 60, Disk: 50, GPU: []domain.GPUUsage{{Load: 40, Memory: 30}}},
	})
	require.NoError(t, err)

	require.Len(t, store.samples, 1)
	assert.Equal(t, *sample, store.samples[0])
	assert.Equal(t, 20.0, sample.Usage.CPU)
	assert.Equal(t, 50.0, sample.Usage.Memory)
	assert.Equal(t, []domain.GPUUsage{{Load: 30, Memory: 20}}, sample.Usage.GPU)
}

func TestRegistry_SetCurrentUsage(t *testing.T) {
	store := newMemStore()
	r := NewRegistry(store, clock.NewMock(), nil)
	ctx := context.Background()

	require.NoError(t, r.RegisterMachine(ctx, &domain.Machine{Name: "cpu-01"}))
	require.NoError(t, r.SetCurrentUsage(ctx, "cpu-01", domain.Usage{CPU: 12.5}))
	require.NotNil(t, store.machines["cpu-01"].Usage)
	assert.Equal(t, 12.5, store.machines["cpu-01"].Usage.CPU)
}

func TestParseGPUQuery(t *testing.T) {
	out := []byte("35, 4096, 16384\nbad line\n90, 8192, 8192\n[N/A], 1, 2\n")
	assert.Equal(t, []domain.GPUUsage{
		{Load: 35, Memory: 25},
		{Load: 90, Memory: 100},
	}, ParseGPUQuery(out))
}

func TestHostProbe_NoGPUTool(t *testing.T) {
	p := &HostProbe{DiskPath: t.TempDir(), GPUCommand: "conveyor-missing-gpu-tool"}

	usage, err := p.Sample(context.Background())
	require.NoError(t, err)
	assert.Empty(t, usage.GPU)
	assert.GreaterOrEqual(t, usage.Memory, 0.0)

	m, err := p.Describe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, m.GPU)
	assert.Positive(t, m.CPU)
}
