package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/multierr"
)

// Config holds the CLI settings. Every flag defaults to its TGRAPH_*
// environment variable, then to a built-in value.
type Config struct {
	// Graph shape
	Rows   int
	Inner  int
	Cols   int
	Layers int

	// Execution
	Fuse       bool
	Iterations int
	Device     string // "auto", "native" or "emulated"
	Timeout    time.Duration

	// CPU sweep over square shapes 1..Sweep, 0 disables
	Sweep   int
	Workers int

	Tolerance float64
	Verbose   int
}

// Load parses args with env-backed defaults. A malformed TGRAPH_* value is
// an error, not a silent fallback.
func Load(args []string) (*Config, error) {
	c := &Config{}
	env := &envLoader{}
	fs := flag.NewFlagSet("tgraph", flag.ContinueOnError)

	fs.IntVar(&c.Rows, "rows", env.Int("TGRAPH_ROWS", 4), "input rows")
	fs.IntVar(&c.Inner, "inner", env.Int("TGRAPH_INNER", 4), "input columns")
	fs.IntVar(&c.Cols, "cols", env.Int("TGRAPH_COLS", 4), "columns of every linear layer")
	fs.IntVar(&c.Layers, "layers", env.Int("TGRAPH_LAYERS", 1), "LinearLayer+ReLU+Softmax blocks")
	fs.BoolVar(&c.Fuse, "fuse", env.Bool("TGRAPH_FUSE", true), "fuse linear layers with following activations")
	fs.IntVar(&c.Iterations, "iterations", env.Int("TGRAPH_ITERATIONS", 1), "GPU submissions per run")
	fs.StringVar(&c.Device, "device", env.Str("TGRAPH_DEVICE", "auto"), "GPU device: auto, native or emulated")
	fs.DurationVar(&c.Timeout, "timeout", time.Duration(env.Int("TGRAPH_TIMEOUT_MS", 30000))*time.Millisecond, "readback timeout")
	fs.IntVar(&c.Sweep, "sweep", env.Int("TGRAPH_SWEEP", 0), "run CPU graphs for shapes 1..n concurrently")
	fs.IntVar(&c.Workers, "workers", env.Int("TGRAPH_WORKERS", 4), "concurrent CPU graphs in the sweep")
	fs.Float64Var(&c.Tolerance, "tolerance", env.Float("TGRAPH_TOLERANCE", 1e-4), "max abs CPU/GPU difference")
	fs.IntVar(&c.Verbose, "v", env.Int("TGRAPH_VERBOSE", 0), "log verbosity")

	if env.err != nil {
		return nil, env.err
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return c, c.validate()
}

func (c *Config) validate() error {
	switch {
	case c.Rows < 1 || c.Inner < 1 || c.Cols < 1:
		return fmt.Errorf("config: extents must be positive, got %dx%dx%d", c.Rows, c.Inner, c.Cols)
	case c.Layers < 1:
		return fmt.Errorf("config: layers must be at least 1, got %d", c.Layers)
	case c.Iterations < 1:
		return fmt.Errorf("config: iterations must be at least 1, got %d", c.Iterations)
	case c.Workers < 1:
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Workers)
	}
	switch c.Device {
	case "auto", "native", "emulated":
		return nil
	default:
		return fmt.Errorf("config: unknown device %q", c.Device)
	}
}

// envLoader reads defaults from the environment and collects every
// malformed value.
type envLoader struct {
	err error
}

func (l *envLoader) fail(key, v string, err error) {
	l.err = multierr.Append(l.err, fmt.Errorf("config: %s=%q: %w", key, v, err))
}

func (l *envLoader) Str(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (l *envLoader) Int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fail(key, v, err)
		return fallback
	}
	return n
}

func (l *envLoader) Bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.fail(key, v, err)
		return fallback
	}
	return b
}

func (l *envLoader) Float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.fail(key, v, err)
		return fallback
	}
	return f
}
