package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncRecorder struct {
	machines []string
}

func (r *syncRecorder) MarkSynced(_ context.Context, machine string) error {
	r.machines = append(r.machines, machine)
	return nil
}

func TestCommandSyncer_PassesEnvAndMarksSynced(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "synced")

	syncer, err := NewCommandSyncer(`sh -c 'echo "$CONVEYOR_COMPUTER $CONVEYOR_ROOT_FOLDER" > `+out+`'`, "gpu-01", root, nil)
	require.NoError(t, err)

	rec := &syncRecorder{}
	require.NoError(t, syncer.Sync(context.Background(), rec))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "gpu-01 "+root+"\n", string(data))
	assert.Equal(t, []string{"gpu-01"}, rec.machines)
}

func TestCommandSyncer_FailureNotRecorded(t *testing.T) {
	syncer, err := NewCommandSyncer(`sh -c 'echo boom >&2; exit 2'`, "gpu-01", t.TempDir(), nil)
	require.NoError(t, err)

	rec := &syncRecorder{}
	err = syncer.Sync(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Empty(t, rec.machines)
}

func TestNewCommandSyncer_Empty(t *testing.T) {
	_, err := NewCommandSyncer("   ", "gpu-01", "/", nil)
	assert.Error(t, err)
}
