package main

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/born-ml/tgraph/graph"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Rows)
	assert.True(t, cfg.Fuse)
	assert.Equal(t, "auto", cfg.Device)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestLoad_EnvAndFlags(t *testing.T) {
	t.Setenv("TGRAPH_ROWS", "7")
	t.Setenv("TGRAPH_FUSE", "false")
	t.Setenv("TGRAPH_DEVICE", "emulated")

	cfg, err := Load([]string{"-cols", "3"})
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Rows)
	assert.Equal(t, 3, cfg.Cols)
	assert.False(t, cfg.Fuse)
	assert.Equal(t, "emulated", cfg.Device)

	cfg, err = Load([]string{"-rows", "2"})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Rows, "flags override the environment")
}

func TestLoad_Rejects(t *testing.T) {
	for _, args := range [][]string{
		{"-rows", "0"},
		{"-layers", "0"},
		{"-iterations", "0"},
		{"-device", "cuda"},
		{"-unknown"},
	} {
		_, err := Load(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestLoad_RejectsMalformedEnv(t *testing.T) {
	t.Setenv("TGRAPH_ROWS", "abc")
	t.Setenv("TGRAPH_FUSE", "maybe")
	t.Setenv("TGRAPH_TOLERANCE", "1e-4")

	_, err := Load(nil)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Contains(t, err.Error(), "TGRAPH_ROWS")
	assert.Contains(t, err.Error(), "TGRAPH_FUSE")

	var numErr *strconv.NumError
	assert.ErrorAs(t, err, &numErr)
}

func TestBuildGraph(t *testing.T) {
	ops := buildGraph(3, 5, 2, 3)
	require.NoError(t, graph.Validate(ops))
	assert.Len(t, ops, 2+3*3)
}

func TestRun_Emulated(t *testing.T) {
	for _, fuse := range []bool{false, true} {
		cfg := &Config{
			Rows: 3, Inner: 5, Cols: 4, Layers: 2,
			Fuse:       fuse,
			Iterations: 2,
			Device:     "emulated",
			Timeout:    time.Second,
			Sweep:      6,
			Workers:    3,
			Tolerance:  1e-4,
		}
		assert.NoError(t, run(context.Background(), cfg, logr.Discard()), "fuse=%v", fuse)
	}
}
