package graph

import (
	"github.com/go-logr/logr"

	"github.com/born-ml/tgraph/internal/tensor"
)

// Option configures Compile.
type Option func(*compileConfig)

type compileConfig struct {
	fuse   bool
	target tensor.Device
	log    logr.Logger
}

func defaultCompileConfig() compileConfig {
	return compileConfig{
		target: tensor.CPU,
		log:    logr.Discard(),
	}
}

// WithFusion enables the LinearLayer lookahead that folds a following ReLU,
// or ReLU and Softmax, into one node.
func WithFusion(fuse bool) Option {
	return func(c *compileConfig) {
		c.fuse = fuse
	}
}

// WithTarget selects the device whose naming the emitted nodes use.
func WithTarget(target tensor.Device) Option {
	return func(c *compileConfig) {
		c.target = target
	}
}

// WithLogger sets the logger. Per-node lowering is logged at V(1).
func WithLogger(log logr.Logger) Option {
	return func(c *compileConfig) {
		c.log = log
	}
}
