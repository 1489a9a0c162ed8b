package executor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin(t *testing.T) {
	r := Builtin()

	assert.True(t, r.IsRegistered(ModelAdd))
	assert.True(t, r.IsTrainable("train"))
	assert.False(t, r.IsTrainable("download"))
	assert.False(t, r.IsTrainable("missing"))
	assert.False(t, r.IsRegistered("missing"))
}

func TestLoadManifest_Missing(t *testing.T) {
	r, err := LoadManifest(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, r.Names())
}

func TestLoadManifest_OverlayBuiltin(t *testing.T) {
	dir := t.TempDir()
	manifest := `
segment:
  trainable: true
  command: python -m segment --config "config file.yml"
download:
  command: ./fetch.sh
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0o644))

	local, err := LoadManifest(dir)
	require.NoError(t, err)

	merged := Builtin().Overlay(local)
	assert.True(t, merged.IsTrainable("segment"))
	assert.True(t, merged.IsRegistered("train"))

	spec, ok := merged.Get("segment")
	require.True(t, ok)
	assert.Equal(t, []string{"python", "-m", "segment", "--config", "config file.yml"}, spec.Command)

	download, _ := merged.Get("download")
	assert.Equal(t, []string{"./fetch.sh"}, download.Command)

	// исходный реестр не изменился
	builtin, _ := Builtin().Get("download")
	assert.Equal(t, []string{"python", "-m", "download"}, builtin.Command)
}

func TestParseManifest_Invalid(t *testing.T) {
	_, err := ParseManifest([]byte("segment: [broken"))
	assert.Error(t, err)
}
