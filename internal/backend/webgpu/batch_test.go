package webgpu

import (
	"errors"
	"testing"
)

func TestNewBatch(t *testing.T) {
	dev := NewEmulatedDevice()

	batch, err := NewBatch(dev)
	if err != nil {
		t.Fatalf("NewBatch failed: %v", err)
	}
	if batch.Encoder() == nil {
		t.Error("Batch encoder is nil")
	}
	if batch.Count() != 0 {
		t.Errorf("New batch should have 0 ops, got %d", batch.Count())
	}
}

func TestBatchAdd(t *testing.T) {
	batch, err := NewBatch(NewEmulatedDevice())
	if err != nil {
		t.Fatalf("NewBatch failed: %v", err)
	}

	noop := func(*CommandBatch) error { return nil }
	batch.Add("test_op", noop)
	if batch.Count() != 1 {
		t.Errorf("Expected 1 op in batch, got %d", batch.Count())
	}

	// Test method chaining
	batch.Add("test_op2", noop).
		Add("test_op3", noop)
	if batch.Count() != 3 {
		t.Errorf("Expected 3 ops in batch, got %d", batch.Count())
	}
}

func TestBatchSubmitEncodesInOrder(t *testing.T) {
	dev := NewEmulatedDevice()
	batch, err := NewBatch(dev)
	if err != nil {
		t.Fatalf("NewBatch failed: %v", err)
	}

	var order []string
	for _, name := range []string{"a", "b", "c"} {
		batch.Add(name, func(*CommandBatch) error {
			order = append(order, name)
			return nil
		})
	}
	if err := batch.Submit(); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if got := len(order); got != 3 || order[0] != "a" || order[2] != "c" {
		t.Errorf("Unexpected encode order %v", order)
	}
	if submits := dev.Stats().Submits; submits != 1 {
		t.Errorf("Expected 1 submission, got %d", submits)
	}
}

func TestBatchCleanupRunsInReverse(t *testing.T) {
	batch, err := NewBatch(NewEmulatedDevice())
	if err != nil {
		t.Fatalf("NewBatch failed: %v", err)
	}

	var order []int
	for i := 0; i < 3; i++ {
		batch.Defer(func() { order = append(order, i) })
	}
	if err := batch.Submit(); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if len(order) != 3 || order[0] != 2 || order[1] != 1 || order[2] != 0 {
		t.Errorf("Expected cleanup order [2 1 0], got %v", order)
	}
}

func TestBatchEncodeErrorSkipsSubmit(t *testing.T) {
	dev := NewEmulatedDevice()
	batch, err := NewBatch(dev)
	if err != nil {
		t.Fatalf("NewBatch failed: %v", err)
	}

	boom := errors.New("boom")
	cleaned := false
	batch.Defer(func() { cleaned = true })
	batch.Add("bad", func(*CommandBatch) error { return boom })

	err = batch.Submit()
	if !errors.Is(err, boom) {
		t.Fatalf("Expected wrapped encode error, got %v", err)
	}
	if !cleaned {
		t.Error("Cleanup must run when encoding fails")
	}
	if submits := dev.Stats().Submits; submits != 0 {
		t.Errorf("Expected no submission, got %d", submits)
	}
}
