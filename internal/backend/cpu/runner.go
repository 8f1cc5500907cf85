package cpu

import (
	"github.com/go-logr/logr"

	"github.com/born-ml/tgraph/internal/graph"
	"github.com/born-ml/tgraph/internal/tensor"
)

// Compile validates and lowers ops into a fresh host arena.
func Compile(ops []graph.Operator, fuse bool, opts ...graph.Option) ([]graph.Node, *Arena, error) {
	arena := &Arena{}
	opts = append([]graph.Option{graph.WithFusion(fuse), graph.WithTarget(tensor.CPU)}, opts...)
	nodes, err := graph.Compile(ops, arena, opts...)
	if err != nil {
		return nil, nil, err
	}
	return nodes, arena, nil
}

// Execute runs nodes against arena with a default backend.
func Execute(nodes []graph.Node, arena *Arena) (*tensor.Tensor, error) {
	return New().Execute(nodes, arena)
}

// Execute runs every node in order and returns a copy of the value the
// final Transfer marks live. Bookkeeping nodes are no-ops.
func (cpu *CPUBackend) Execute(nodes []graph.Node, arena *Arena) (*tensor.Tensor, error) {
	for _, n := range nodes {
		if n.Kind.IsBookkeeping() {
			continue
		}
		if err := cpu.executeNode(n, arena); err != nil {
			return nil, err
		}
	}
	return result(nodes, arena)
}

func (cpu *CPUBackend) executeNode(n graph.Node, arena *Arena) error {
	in, out, err := arena.Operands(n)
	if err != nil {
		return err
	}

	switch n.Kind {
	case graph.NodeLinearLayer:
		return cpu.LinearLayer(in[0], in[1], in[2], out)
	case graph.NodeLinearReLU:
		return cpu.LinearReLU(in[0], in[1], in[2], out)
	case graph.NodeLinearReLUSoftmax:
		return cpu.LinearReLUSoftmax(in[0], in[1], in[2], out)
	case graph.NodeReLU:
		return cpu.ReLU(in[0], out)
	case graph.NodeSoftmax:
		return cpu.Softmax(in[0], out)
	default:
		return &graph.StructuralError{Node: n.Name, Reason: "no CPU kernel for " + n.Kind.String()}
	}
}

// result picks the buffer of the second-to-last node, the Transfer that
// precedes the terminal Output.
func result(nodes []graph.Node, arena *Arena) (*tensor.Tensor, error) {
	if len(nodes) < 2 {
		return nil, &graph.StructuralError{Reason: "node list too short to hold a result"}
	}
	last := nodes[len(nodes)-2]
	if last.Kind != graph.NodeTransfer || len(last.Buffers) != 1 {
		return nil, &graph.StructuralError{Node: last.Name, Reason: "result node must be a single-buffer Transfer"}
	}
	t, err := arena.At(last.Buffers[0])
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// Option configures a Runner.
type Option func(*Runner)

// WithFusion enables LinearLayer fusion during lowering.
func WithFusion(fuse bool) Option {
	return func(r *Runner) {
		r.fuse = fuse
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// WithBackend overrides the kernel backend, e.g. NewSequential().
func WithBackend(b *CPUBackend) Option {
	return func(r *Runner) {
		r.backend = b
	}
}

// Runner owns a lowered graph and its host arena.
type Runner struct {
	backend *CPUBackend
	fuse    bool
	log     logr.Logger

	nodes []graph.Node
	arena *Arena
}

// NewRunner validates and lowers ops. Nothing is allocated when validation
// fails.
func NewRunner(ops []graph.Operator, opts ...Option) (*Runner, error) {
	r := &Runner{
		backend: New(),
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}

	nodes, arena, err := Compile(ops, r.fuse, graph.WithLogger(r.log))
	if err != nil {
		return nil, err
	}
	r.nodes, r.arena = nodes, arena
	return r, nil
}

// Run executes the graph and returns its output.
func (r *Runner) Run() (*tensor.Tensor, error) {
	out, err := r.backend.Execute(r.nodes, r.arena)
	if err != nil {
		return nil, err
	}
	r.log.V(1).Info("cpu graph executed", "nodes", len(r.nodes), "output", out.Shape().String())
	return out, nil
}

// Nodes returns the lowered node list.
func (r *Runner) Nodes() []graph.Node {
	return r.nodes
}

// Arena returns the buffers the nodes index into.
func (r *Runner) Arena() *Arena {
	return r.arena
}
