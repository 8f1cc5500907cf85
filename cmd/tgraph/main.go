// Package main provides the tgraph CLI. It builds a graph of LinearLayer,
// ReLU and Softmax blocks, runs it on the CPU and on a WebGPU device and
// reports how far the results differ.
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/tgraph/backend/cpu"
	"github.com/born-ml/tgraph/backend/webgpu"
	"github.com/born-ml/tgraph/graph"
	"github.com/born-ml/tgraph/tensor"
)

const version = "v0.1.0-dev"

func newLogger(verbose int) logr.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerologr.NameFieldName = "logger"
	zerologr.NameSeparator = "/"

	level := zerolog.InfoLevel
	switch {
	case verbose >= 2:
		level = zerolog.TraceLevel
	case verbose == 1:
		level = zerolog.DebugLevel
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02T15:04:05.000Z07:00"}
	zlog := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return zerologr.New(&zlog)
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("tgraph %s\n", version)
		return
	}

	cfg, err := Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := newLogger(cfg.Verbose).WithName("tgraph")

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error(err, "run failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config, log logr.Logger) error {
	if cfg.Sweep > 0 {
		if err := sweep(ctx, cfg, log.WithName("sweep")); err != nil {
			return err
		}
	}

	ops := buildGraph(cfg.Rows, cfg.Inner, cfg.Cols, cfg.Layers)

	ref, err := cpu.NewRunner(ops, cpu.WithFusion(cfg.Fuse), cpu.WithLogger(log.WithName("cpu")))
	if err != nil {
		return err
	}
	want, err := ref.Run()
	if err != nil {
		return err
	}
	log.Info("cpu result", "shape", want.Shape().String(), "sum", want.Sum(), "nodes", len(ref.Nodes()))

	got, err := runGPU(ctx, cfg, log.WithName("gpu"), ops)
	if err != nil {
		return err
	}

	diff, err := got.MaxAbsDiff(want)
	if err != nil {
		return err
	}
	log.Info("compared", "maxAbsDiff", diff, "tolerance", cfg.Tolerance)
	if float64(diff) > cfg.Tolerance {
		return fmt.Errorf("cpu and gpu differ by %g (tolerance %g)", diff, cfg.Tolerance)
	}
	return nil
}

// buildGraph returns layers blocks of LinearLayer, ReLU and Softmax over a
// rows x inner input.
func buildGraph(rows, inner, cols, layers int) []graph.Operator {
	ops := []graph.Operator{graph.HostToDevice(signed(0.1, rows, inner))}
	in := inner
	for l := 0; l < layers; l++ {
		scale := 0.05 / float32(l+1)
		ops = append(ops,
			graph.LinearLayer(signed(scale, in, cols), signed(scale/2, rows, cols)),
			graph.ReLU(),
			graph.Softmax())
		in = cols
	}
	return append(ops, graph.DeviceToHost())
}

// signed returns a ramp shifted so roughly half the values are negative.
func signed(scale float32, rows, cols int) *tensor.Tensor {
	t := tensor.New(scale, rows, cols)
	half := float32(rows*cols) * scale / 2
	for i := range t.Data() {
		t.Data()[i] -= half
	}
	return t
}

func openDevice(cfg *Config, log logr.Logger) (webgpu.Device, error) {
	if cfg.Device == "emulated" {
		return webgpu.NewEmulatedDevice(), nil
	}
	dev, err := webgpu.NewNativeDevice()
	if err == nil {
		return dev, nil
	}
	if cfg.Device == "native" {
		return nil, err
	}
	log.Info("native device unavailable, using emulation", "reason", err.Error())
	return webgpu.NewEmulatedDevice(), nil
}

func runGPU(ctx context.Context, cfg *Config, log logr.Logger, ops []graph.Operator) (*tensor.Tensor, error) {
	dev, err := openDevice(cfg, log)
	if err != nil {
		return nil, err
	}
	defer dev.Release()

	cache := webgpu.NewProgramCache(dev, log.WithName("cache"))
	defer cache.Release()
	if err := cache.PopulateAll(); err != nil {
		return nil, err
	}

	r, err := webgpu.NewRunner(dev, ops,
		webgpu.WithFusion(cfg.Fuse),
		webgpu.WithProgramCache(cache),
		webgpu.WithLogger(log))
	if err != nil {
		return nil, err
	}
	defer r.Release()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	start := time.Now()
	out, err := r.Run(ctx, cfg.Iterations)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("gpu readback did not finish within %s: %w", cfg.Timeout, err)
	}
	if err != nil {
		return nil, err
	}
	log.Info("gpu result",
		"device", dev.Name(),
		"iterations", cfg.Iterations,
		"elapsed", time.Since(start).String(),
		"sum", out.Sum())
	return out, nil
}

// sweep runs square graphs of every size 1..cfg.Sweep on the CPU, at most
// cfg.Workers at a time. Each runner owns its arena, so they share nothing.
func sweep(ctx context.Context, cfg *Config, log logr.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	sums := make([]float32, cfg.Sweep+1)
	for n := 1; n <= cfg.Sweep; n++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := cpu.NewRunner(buildGraph(n, n, n, cfg.Layers), cpu.WithFusion(cfg.Fuse))
			if err != nil {
				return fmt.Errorf("shape %d: %w", n, err)
			}
			out, err := r.Run()
			if err != nil {
				return fmt.Errorf("shape %d: %w", n, err)
			}
			sums[n] = out.Sum()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for n := 1; n <= cfg.Sweep; n++ {
		log.V(1).Info("shape done", "n", n, "sum", sums[n])
		if math.Abs(float64(sums[n])-1) > 1e-4 {
			return fmt.Errorf("shape %d: softmax output sums to %g", n, sums[n])
		}
	}
	log.Info("sweep finished", "shapes", cfg.Sweep, "workers", cfg.Workers)
	return nil
}
