package graph

import (
	"github.com/go-logr/logr"
)

// Compile validates ops and lowers them in one forward pass into a node list
// whose buffer indices point into alloc.
//
// HostToDevice pushes its input once and marks it live with a Transfer.
// Every compute operator pushes a fresh output (and its weights and bias,
// for the linear family) and is followed by a Transfer of that output.
// Location changes never copy, so alloc ends up holding one buffer per
// computed value plus the operator parameters.
func Compile(ops []Operator, alloc Allocator, opts ...Option) ([]Node, error) {
	cfg := defaultCompileConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := Validate(ops); err != nil {
		return nil, err
	}

	c := &compiler{
		alloc: alloc,
		names: namer{target: cfg.target},
		log:   cfg.log,
	}

	for i := 0; i < len(ops); i++ {
		op := ops[i]

		var err error
		switch op.Kind {
		case OpEmpty:
		case OpHostToDevice:
			err = c.hostToDevice(op)
		case OpDeviceToHost:
			err = c.deviceToHost()
		case OpLinearLayer:
			kind, consumed := NodeLinearLayer, 0
			if cfg.fuse {
				kind, consumed = lookahead(ops, i)
			}
			err = c.linear(kind, op)
			i += consumed
		case OpLinearReLUFused:
			err = c.linear(NodeLinearReLU, op)
		case OpLinearReLUSoftmaxFused:
			err = c.linear(NodeLinearReLUSoftmax, op)
		case OpReLU:
			err = c.elementwise(NodeReLU)
		case OpSoftmax:
			err = c.elementwise(NodeSoftmax)
		default:
			err = structural("", "unknown operator kind %d at %d", op.Kind, i)
		}
		if err != nil {
			return nil, err
		}
	}

	cfg.log.V(1).Info("graph compiled",
		"target", cfg.target.String(),
		"fuse", cfg.fuse,
		"nodes", len(c.nodes),
		"buffers", alloc.Len())
	return c.nodes, nil
}

type compiler struct {
	alloc Allocator
	names namer
	nodes []Node
	log   logr.Logger
}

func (c *compiler) emit(kind NodeKind, name string, buffers ...int) {
	if name == "" {
		name = c.names.next(kind)
	}
	n := Node{Name: name, Kind: kind, Buffers: buffers}
	c.log.V(1).Info("lowered node", "node", n.Name, "buffers", n.Buffers)
	c.nodes = append(c.nodes, n)
}

// transferred returns the buffer marked live by the previous node, which
// must be a single-index Transfer.
func (c *compiler) transferred(consumer string) (int, error) {
	if len(c.nodes) == 0 {
		return 0, structural(consumer, "no preceding node")
	}
	prev := c.nodes[len(c.nodes)-1]
	if prev.Kind != NodeTransfer {
		return 0, structural(consumer, "preceded by %s, want Transfer", prev.Name)
	}
	if len(prev.Buffers) != 1 {
		return 0, structural(consumer, "preceding %s holds %d buffers, want 1", prev.Name, len(prev.Buffers))
	}
	return prev.Buffers[0], nil
}

func (c *compiler) hostToDevice(op Operator) error {
	name := c.names.next(NodeInput)
	k, err := c.alloc.Push(name, op.Input)
	if err != nil {
		return err
	}
	c.emit(NodeInput, name, k)
	c.emit(NodeTransfer, "", k)
	return nil
}

func (c *compiler) deviceToHost() error {
	name := c.names.next(NodeOutput)
	k, err := c.transferred(name)
	if err != nil {
		return err
	}
	c.emit(NodeOutput, name, k)
	return nil
}

func (c *compiler) linear(kind NodeKind, op Operator) error {
	name := c.names.next(kind)
	in, err := c.transferred(name)
	if err != nil {
		return err
	}

	w, err := c.alloc.Push(name+".weights", op.Weights)
	if err != nil {
		return err
	}
	b, err := c.alloc.Push(name+".bias", op.Bias)
	if err != nil {
		return err
	}
	out, err := c.alloc.Alloc(name+".output", op.Bias.Rows(), op.Bias.Cols())
	if err != nil {
		return err
	}

	c.emit(kind, name, in, w, b, out)
	c.emit(NodeTransfer, "", out)
	return nil
}

func (c *compiler) elementwise(kind NodeKind) error {
	name := c.names.next(kind)
	in, err := c.transferred(name)
	if err != nil {
		return err
	}
	shape, err := c.alloc.Shape(in)
	if err != nil {
		return err
	}
	out, err := c.alloc.Alloc(name+".output", shape.Rows, shape.Cols)
	if err != nil {
		return err
	}

	c.emit(kind, name, in, out)
	c.emit(NodeTransfer, "", out)
	return nil
}

// Fusion lookahead states. A LinearLayer starts in stateLinear; a ReLU right
// after it moves to stateLinearReLU; a Softmax after that completes the
// three-way fusion. Anything else stops at the current state.
type fuseState int

const (
	stateLinear fuseState = iota
	stateLinearReLU
	stateLinearReLUSoftmax
)

// lookahead decides the node kind for the LinearLayer at ops[i] and how
// many of the following operators the fused node absorbs.
func lookahead(ops []Operator, i int) (NodeKind, int) {
	state := stateLinear
	for next := i + 1; next < len(ops) && state != stateLinearReLUSoftmax; next++ {
		kind := ops[next].Kind
		if state == stateLinear && kind == OpReLU {
			state = stateLinearReLU
		} else if state == stateLinearReLU && kind == OpSoftmax {
			state = stateLinearReLUSoftmax
		} else {
			break
		}
	}

	switch state {
	case stateLinearReLU:
		return NodeLinearReLU, 1
	case stateLinearReLUSoftmax:
		return NodeLinearReLUSoftmax, 2
	default:
		return NodeLinearLayer, 0
	}
}
