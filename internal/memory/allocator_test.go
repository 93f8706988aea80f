package memory

import (
	"errors"
	"testing"
)

// countingAllocator wraps HeapAllocator and records calls.
type countingAllocator struct {
	heap   HeapAllocator
	allocs int
	frees  int
}

func (c *countingAllocator) Alloc(align, size int) (*Block, error) {
	c.allocs++
	return c.heap.Alloc(align, size)
}

func (c *countingAllocator) Free(b *Block) {
	c.frees++
	c.heap.Free(b)
}

func TestHeapAllocatorAlignment(t *testing.T) {
	var h HeapAllocator
	for _, align := range []int{1, 64, 256, 4096} {
		b, err := h.Alloc(align, 1000)
		if err != nil {
			t.Fatalf("Alloc(%d) failed: %v", align, err)
		}
		if b.Addr()%uintptr(align) != 0 {
			t.Errorf("Alloc(%d) returned unaligned address %#x", align, b.Addr())
		}
		if b.Len() != 1000 {
			t.Errorf("Alloc(%d) len = %d, want 1000", align, b.Len())
		}
		if cap(b.Bytes()) != 1000 {
			t.Errorf("Alloc(%d) cap = %d, want 1000", align, cap(b.Bytes()))
		}
	}
	if h.Live() != 4 {
		t.Errorf("Live() = %d, want 4", h.Live())
	}
}

func TestHeapAllocatorRejectsBadArgs(t *testing.T) {
	var h HeapAllocator
	if _, err := h.Alloc(3, 16); err == nil {
		t.Error("expected error for non power-of-two alignment")
	}
	if _, err := h.Alloc(16, 0); err == nil {
		t.Error("expected error for zero size")
	}
}

func TestHeapAllocatorFreeIsIdempotent(t *testing.T) {
	var h HeapAllocator
	b, err := h.Alloc(256, 64)
	if err != nil {
		t.Fatal(err)
	}
	h.Free(b)
	h.Free(b)
	if !b.Freed() || b.Addr() != 0 {
		t.Errorf("block not released: %v", b)
	}
	if h.Live() != 0 {
		t.Errorf("Live() = %d, want 0", h.Live())
	}
}

// TestRetryAllocatorRetriesUntilValid checks that a validator failing twice
// yields exactly three allocations and two frees.
func TestRetryAllocatorRetriesUntilValid(t *testing.T) {
	alloc := &countingAllocator{}
	calls := 0
	r := &RetryAllocator{
		Allocator: alloc,
		Validate: func(b *Block) error {
			calls++
			if calls <= 2 {
				return errors.New("crosses segment")
			}
			return nil
		},
	}

	b, err := r.Allocate(256, 4096)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if b.Freed() {
		t.Fatal("returned block is freed")
	}
	if alloc.allocs != 3 {
		t.Errorf("allocs = %d, want 3", alloc.allocs)
	}
	if alloc.frees != 2 {
		t.Errorf("frees = %d, want 2", alloc.frees)
	}
	if alloc.heap.Live() != 1 {
		t.Errorf("live blocks = %d, want 1", alloc.heap.Live())
	}
}

func TestRetryAllocatorPropagatesAllocError(t *testing.T) {
	r := &RetryAllocator{Allocator: &HeapAllocator{}}
	if _, err := r.Allocate(256, -1); err == nil {
		t.Fatal("expected error")
	}
}

func TestSegmentValidator(t *testing.T) {
	v := SegmentValidator(1 << 30)
	var h HeapAllocator
	b, _ := h.Alloc(256, 128)
	if err := v(b); err != nil {
		t.Errorf("small block rejected: %v", err)
	}

	// Any two-byte window starting on the last byte before a boundary
	// crosses it.
	tiny := SegmentValidator(1)
	if err := tiny(b); err == nil {
		t.Error("expected crossing error for 1-byte segments")
	}

	h.Free(b)
	if err := v(b); err == nil {
		t.Error("expected error for freed block")
	}
}
