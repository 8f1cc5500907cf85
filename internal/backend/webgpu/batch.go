package webgpu

import "fmt"

// CommandBatch accumulates GPU operations for single submission.
// Instead of submitting each node separately, every node of a graph
// iteration is recorded into one encoder and submitted together.
type CommandBatch struct {
	device  Device
	encoder Encoder
	ops     []pendingOp

	// cleanup releases per-submission resources once the commands using
	// them are queued.
	cleanup []func()
}

// pendingOp represents a single GPU operation waiting to be encoded.
type pendingOp struct {
	name   string                    // Node or pass name for errors and logs
	encode func(*CommandBatch) error // Records the operation
}

// NewBatch creates a new command batch backed by one encoder.
func NewBatch(device Device) (*CommandBatch, error) {
	encoder, err := device.NewEncoder()
	if err != nil {
		return nil, deviceError("create encoder", err)
	}
	return &CommandBatch{
		device:  device,
		encoder: encoder,
		ops:     make([]pendingOp, 0, 8),
	}, nil
}

// Add adds an operation to the batch.
// The operation function should encode commands but NOT submit them.
// Returns the batch for method chaining.
func (batch *CommandBatch) Add(name string, encode func(*CommandBatch) error) *CommandBatch {
	batch.ops = append(batch.ops, pendingOp{name: name, encode: encode})
	return batch
}

// Encoder returns the encoder operations record into.
func (batch *CommandBatch) Encoder() Encoder {
	return batch.encoder
}

// Defer registers f to run once the batch has been submitted or abandoned.
func (batch *CommandBatch) Defer(f func()) {
	batch.cleanup = append(batch.cleanup, f)
}

// Submit encodes all batched operations in order and queues them in a
// single submission. The batch is consumed and cannot be reused.
func (batch *CommandBatch) Submit() error {
	defer batch.runCleanup()

	for _, op := range batch.ops {
		if err := op.encode(batch); err != nil {
			return fmt.Errorf("webgpu: encode %s: %w", op.name, err)
		}
	}

	if err := batch.device.Submit(batch.encoder); err != nil {
		return deviceError("submit", err)
	}
	return nil
}

// Count returns the number of operations in the batch.
func (batch *CommandBatch) Count() int {
	return len(batch.ops)
}

func (batch *CommandBatch) runCleanup() {
	// Reverse order, like deferred calls.
	for i := len(batch.cleanup) - 1; i >= 0; i-- {
		batch.cleanup[i]()
	}
	batch.cleanup = nil
}
