package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_RequiresPath(t *testing.T) {
	_, err := NewConfig(Config{})
	assert.Error(t, err)

	cfg, err := NewConfig(Config{PipelinePath: "p.hcl"})
	require.NoError(t, err)
	assert.Equal(t, "p.hcl", cfg.PipelinePath)
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
operation "hello" {
  message = "hello from the pipeline"
}

operation "after" {
  after = ["hello"]
}
`), 0o644))

	cfg, err := NewConfig(Config{PipelinePath: path, LogLevel: "error", WorkerCount: 2})
	require.NoError(t, err)

	a := NewApp(io.Discard, cfg)
	assert.NoError(t, a.Run(context.Background()))
}

func TestRun_FailingOperationSurfacesError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
operation "doomed" {
  fail = true
}
`), 0o644))

	cfg, err := NewConfig(Config{PipelinePath: path, LogLevel: "error", WorkerCount: 2})
	require.NoError(t, err)

	err = NewApp(io.Discard, cfg).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doomed")
}

func TestRun_MissingPipelinePath(t *testing.T) {
	cfg, err := NewConfig(Config{PipelinePath: filepath.Join(t.TempDir(), "missing"), LogLevel: "error"})
	require.NoError(t, err)

	err = NewApp(io.Discard, cfg).Run(context.Background())
	assert.Error(t, err)
}

func TestNewLogger_Formats(t *testing.T) {
	assert.NotNil(t, newLogger("debug", "json", io.Discard))
	assert.NotNil(t, newLogger("bogus", "text", io.Discard))
}
