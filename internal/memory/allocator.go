package memory

import (
	"fmt"
	"sync/atomic"

	"github.com/bryanchriswhite/DualCam/internal/logger"
)

// Allocator hands out aligned blocks.
type Allocator interface {
	Alloc(align, size int) (*Block, error)
	Free(b *Block)
}

// Validator decides whether a block is usable by the capture hardware.
type Validator func(b *Block) error

// HeapAllocator allocates blocks from the Go heap. The Go collector does
// not move heap objects, so an aligned address stays aligned.
type HeapAllocator struct {
	live atomic.Int64
}

// Alloc returns a zeroed block of size bytes aligned to align, which must be
// a power of two.
func (h *HeapAllocator) Alloc(align, size int) (*Block, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid allocation size %d", size)
	}
	if align <= 0 || align&(align-1) != 0 {
		return nil, fmt.Errorf("alignment %d is not a power of two", align)
	}
	raw, data := alignedSlice(align, size)
	h.live.Add(1)
	return &Block{raw: raw, data: data, align: align}, nil
}

// Free drops the block's memory. Freeing twice is a no-op.
func (h *HeapAllocator) Free(b *Block) {
	if b == nil || b.Freed() {
		return
	}
	b.raw = nil
	b.data = nil
	h.live.Add(-1)
}

// Live returns the number of blocks allocated and not yet freed.
func (h *HeapAllocator) Live() int64 {
	return h.live.Load()
}

// SegmentValidator rejects blocks that straddle a multiple of boundary.
// Capture DMA cannot cross such a boundary in one transfer.
func SegmentValidator(boundary uintptr) Validator {
	return func(b *Block) error {
		if b.Len() == 0 {
			return fmt.Errorf("empty block")
		}
		start := b.Addr()
		end := start + uintptr(b.Len()) - 1
		if start/boundary != end/boundary {
			return fmt.Errorf("block %#x-%#x crosses %#x segment boundary", start, end, boundary)
		}
		return nil
	}
}

// RetryAllocator allocates until the validator accepts the block. There is
// no retry limit: a platform that never yields a valid block cannot run the
// camera at all.
type RetryAllocator struct {
	Allocator Allocator
	Validate  Validator
}

// Allocate returns a validated block of size bytes aligned to align.
func (r *RetryAllocator) Allocate(align, size int) (*Block, error) {
	log := logger.WithComponent("memory")

	for attempt := 1; ; attempt++ {
		b, err := r.Allocator.Alloc(align, size)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate %d bytes: %w", size, err)
		}
		if r.Validate == nil {
			return b, nil
		}
		verr := r.Validate(b)
		if verr == nil {
			if attempt > 1 {
				log.Debug().
					Int("attempts", attempt).
					Int("size", size).
					Msg("Allocation accepted after retry")
			}
			return b, nil
		}
		log.Debug().
			Err(verr).
			Int("attempt", attempt).
			Msg("Allocation rejected, retrying")
		r.Allocator.Free(b)
	}
}
