package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/docparse/internal/config"
)

func TestBuildServicesWiresEveryComponent(t *testing.T) {
	cfg := config.Default()
	cfg.Blob.RootDir = filepath.Join(t.TempDir(), "blobs")

	svc, err := buildServices(cfg, t.TempDir())
	require.NoError(t, err)

	assert.NotNil(t, svc.store)
	assert.NotNil(t, svc.blobs)
	assert.NotNil(t, svc.queue)
	assert.NotNil(t, svc.pipeline)
	assert.NotNil(t, svc.pool)
	assert.NotNil(t, svc.sweeper)
}

func TestLoadConfigFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.kdl"))
	require.NoError(t, err)
	assert.Equal(t, config.Default().Server.Port, cfg.Server.Port)
}
