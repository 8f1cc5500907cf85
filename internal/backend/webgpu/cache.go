package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// ProgramCache holds compiled shader modules and pipelines for reuse across
// graph runs.
//
// The cache is owned by the caller and shared by reference. Populate it
// before any run uses it; during dispatch it is only read.
type ProgramCache struct {
	device Device
	log    logr.Logger

	programs  [numShaders]Program
	pipelines [numKernels]Pipeline
	mu        sync.RWMutex

	compiles int
}

// NewProgramCache creates an empty cache for device.
func NewProgramCache(device Device, log logr.Logger) *ProgramCache {
	return &ProgramCache{
		device: device,
		log:    log,
	}
}

// PopulateAll compiles every known kernel.
func (c *ProgramCache) PopulateAll() error {
	return c.Populate(AllKernels()...)
}

// Populate compiles the given kernels, skipping those already cached. Each
// shader module is compiled once and shared by its entry points.
func (c *ProgramCache) Populate(ids ...KernelID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		if id < 0 || id >= numKernels {
			return fmt.Errorf("webgpu: unknown kernel %d", int(id))
		}
		if c.pipelines[id] != nil {
			continue
		}

		shader := id.Shader()
		if c.programs[shader] == nil {
			program, err := c.device.CompileProgram(shader.String(), shader.Source())
			if err != nil {
				return deviceError("compile "+shader.String(), err)
			}
			c.programs[shader] = program
			c.compiles++
		}

		pipeline, err := c.device.CreatePipeline(c.programs[shader], id.Entry())
		if err != nil {
			return deviceError("create pipeline "+id.String(), err)
		}
		c.pipelines[id] = pipeline
		c.log.Info("cached kernel", "kernel", id.String(), "shader", shader.String(), "entry", id.Entry())
	}
	return nil
}

// Pipeline returns the cached pipeline for id, or ErrProgramNotCached.
func (c *ProgramCache) Pipeline(id KernelID) (Pipeline, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if id < 0 || id >= numKernels || c.pipelines[id] == nil {
		return nil, fmt.Errorf("%w: %s", ErrProgramNotCached, id)
	}
	return c.pipelines[id], nil
}

// Len returns the number of cached pipelines.
func (c *ProgramCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, p := range c.pipelines {
		if p != nil {
			n++
		}
	}
	return n
}

// Compiles returns how many shader modules the cache has compiled.
func (c *ProgramCache) Compiles() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.compiles
}

// Release frees every cached pipeline and program.
func (c *ProgramCache) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, p := range c.pipelines {
		if p != nil {
			p.Release()
			c.pipelines[i] = nil
		}
	}
	for i, p := range c.programs {
		if p != nil {
			p.Release()
			c.programs[i] = nil
		}
	}
}
