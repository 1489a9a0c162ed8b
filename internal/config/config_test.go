package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	root := t.TempDir()
	t.Setenv("ROOT_FOLDER", root)
	t.Setenv("MASTER_PORT_RANGE", "")
	t.Setenv("MODE_ECONOMIC", "")
	t.Setenv("DOCKER_IMG", "")
	t.Setenv("DOCKER_MAIN", "")
	t.Setenv("HOSTNAME_OVERRIDE", "gpu-01")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, root, cfg.RootFolder)
	assert.Equal(t, 29500, cfg.PortRange.Low)
	assert.Equal(t, 29599, cfg.PortRange.High)
	assert.False(t, cfg.Economic)
	assert.True(t, cfg.DockerMain)
	assert.Equal(t, "default", cfg.DockerImage)
	assert.Equal(t, "gpu-01", cfg.Hostname)
	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, filepath.Join(root, "tasks"), cfg.TaskFolder())
	assert.Equal(t, "gpu-01_default", cfg.WorkerQueue())
	assert.Equal(t, "gpu-01_default_supervisor", cfg.SupervisorQueue())
}

func TestLoad_Economic(t *testing.T) {
	t.Setenv("ROOT_FOLDER", t.TempDir())
	t.Setenv("MODE_ECONOMIC", "True")
	t.Setenv("HOSTNAME_OVERRIDE", "cpu-01")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Economic)
	assert.Equal(t, 1, cfg.SampleBatch())
	assert.Equal(t, 10*time.Second, cfg.SampleInterval())
	assert.Equal(t, 10*time.Second, cfg.SyncInterval())

	cfg.Economic = false
	assert.Equal(t, 10, cfg.SampleBatch())
	assert.Equal(t, time.Second, cfg.SampleInterval())
}

func TestLoad_BadPortRange(t *testing.T) {
	t.Setenv("ROOT_FOLDER", t.TempDir())
	t.Setenv("MASTER_PORT_RANGE", "9000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MASTER_PORT_RANGE")
}

func TestEnsureFolders(t *testing.T) {
	cfg := &Config{RootFolder: t.TempDir()}
	require.NoError(t, cfg.EnsureFolders())
	assert.DirExists(t, cfg.TaskFolder())
	assert.DirExists(t, cfg.DataFolder())
	assert.DirExists(t, cfg.ModelFolder())
	assert.DirExists(t, cfg.ConfigFolder())
}
