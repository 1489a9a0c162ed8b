package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const description = `
info:
  name: mnist
  project: vision
executors:
  prepare:
    type: download
  train:
    type: train
    depends: prepare
`

func writeDescription(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(description), 0o644))
	return path
}

func TestBuildRequest_Defaults(t *testing.T) {
	path := writeDescription(t)

	req, err := buildRequest(path, startFlags{})
	require.NoError(t, err)

	assert.Equal(t, "mnist", req.Pipeline.Info.Name)
	assert.Equal(t, description, req.RawText)
	assert.True(t, req.UploadFiles)
	assert.Equal(t, filepath.Dir(path), req.SourceFolder)
	assert.Nil(t, req.CopyFrom)
	assert.False(t, req.Debug)
}

func TestBuildRequest_CopyFrom(t *testing.T) {
	path := writeDescription(t)
	src := uuid.New()

	req, err := buildRequest(path, startFlags{copyFrom: src.String(), debug: true, folder: "/src"})
	require.NoError(t, err)

	require.NotNil(t, req.CopyFrom)
	assert.Equal(t, src, *req.CopyFrom)
	assert.False(t, req.UploadFiles)
	assert.True(t, req.Debug)
	assert.Equal(t, "/src", req.SourceFolder)
}

func TestBuildRequest_NoUpload(t *testing.T) {
	req, err := buildRequest(writeDescription(t), startFlags{noUpload: true})
	require.NoError(t, err)
	assert.False(t, req.UploadFiles)
}

func TestBuildRequest_Errors(t *testing.T) {
	_, err := buildRequest(filepath.Join(t.TempDir(), "missing.yml"), startFlags{})
	require.Error(t, err)

	_, err = buildRequest(writeDescription(t), startFlags{copyFrom: "not-a-uuid"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--copy-from")
}

func TestOutput_NodesTable(t *testing.T) {
	var out, errOut bytes.Buffer
	o := newOutput(false, &out, &errOut)

	train, prepare := uuid.New(), uuid.New()
	o.Nodes(map[string]uuid.UUID{"train": train, "prepare": prepare})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "EXECUTOR"))
	assert.True(t, strings.HasPrefix(lines[2], "prepare"))
	assert.Contains(t, lines[3], train.String())
	assert.Empty(t, errOut.String())
}

func TestOutput_NodesJSON(t *testing.T) {
	var out bytes.Buffer
	o := newOutput(true, &out, &bytes.Buffer{})

	id := uuid.New()
	o.Nodes(map[string]uuid.UUID{"train": id})

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, id.String(), decoded["train"])
}

func TestDispatchCmd_Flags(t *testing.T) {
	cmd := NewDispatchCmd(nil, nil)

	repeat, err := cmd.Flags().GetInt("repeat")
	require.NoError(t, err)
	assert.Equal(t, 1, repeat)
	assert.NotNil(t, cmd.Flags().Lookup("machine"))
	assert.NotNil(t, cmd.Flags().Lookup("image"))
	assert.Error(t, cmd.Args(cmd, nil))
}
