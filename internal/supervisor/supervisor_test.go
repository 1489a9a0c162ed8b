package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
)

type blockingRunner struct {
	started atomic.Bool
}

func (r *blockingRunner) Start(ctx context.Context) error {
	r.started.Store(true)
	<-ctx.Done()
	return ctx.Err()
}

func testSettings(dockerMain bool) *config.Config {
	return &config.Config{
		RootFolder:  "/tmp/conveyor",
		PortRange:   domain.PortRange{Low: 29500, High: 29599},
		DockerImage: testImage,
		DockerMain:  dockerMain,
		Hostname:    testMachine,
		IP:          "10.0.0.5",
		Port:        4201,
		User:        "ml",
	}
}

func TestSupervisor_RunRegistersAndStartsLoops(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := clock.NewMock()
	fleetStore := newMemFleet()
	stale := inProgress(500, clk.Now().UTC().Add(-time.Hour))
	nodes := newMemNodes(stale)

	var opens atomic.Int32
	open := func(context.Context) (*Stores, error) {
		opens.Add(1)
		return &Stores{Nodes: nodes, Fleet: fleetStore}, nil
	}

	host := &fakeHost{
		usages:  []domain.Usage{{CPU: 5}},
		machine: domain.Machine{GPU: 2, CPU: 16, Memory: 64 << 30, Disk: 1 << 40},
		delay:   2 * time.Millisecond,
	}
	commands := &blockingRunner{}

	s := New(Config{
		Settings:       testSettings(true),
		Open:           open,
		Host:           host,
		Processes:      newFakeProcs(),
		Commands:       commands,
		ReaperInterval: time.Second,
		SampleInterval: -1,
		Clock:          clk,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return fleetStore.sampleCount() > 0 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return nodes.get(stale.ID).Status == domain.NodeStatusFailed
	}, 3*time.Second, 10*time.Millisecond)
	assert.True(t, commands.started.Load())

	cancel()
	require.NoError(t, <-done)

	fleetStore.mu.Lock()
	defer fleetStore.mu.Unlock()

	m := fleetStore.machines[testMachine]
	require.NotNil(t, m)
	assert.Equal(t, 2, m.GPU)
	assert.Equal(t, 16, m.CPU)
	assert.Equal(t, "10.0.0.5", m.IP)
	assert.Equal(t, 4201, m.Port)
	assert.Equal(t, "ml", m.User)

	c := fleetStore.containers[testMachine+"/"+testImage]
	require.NotNil(t, c)
	assert.Equal(t, "29500-29599", c.Ports.String())

	// Старт и по сессии на каждый цикл.
	assert.Equal(t, int32(3), opens.Load())
}

func TestSupervisor_SecondaryContainerOnlyReaps(t *testing.T) {
	defer goleak.VerifyNone(t)

	fleetStore := newMemFleet()
	open := func(context.Context) (*Stores, error) {
		return &Stores{Nodes: newMemNodes(), Fleet: fleetStore}, nil
	}

	s := New(Config{
		Settings:       testSettings(false),
		Open:           open,
		Host:           &fakeHost{},
		Processes:      newFakeProcs(),
		ReaperInterval: time.Second,
		Clock:          clock.NewMock(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	assert.Zero(t, fleetStore.sampleCount())
	assert.Len(t, fleetStore.machines, 1)
}
