// Package memory provides aligned, fixed-size memory blocks for capture
// surfaces and the allocate-validate-retry loop the capture hardware needs.
package memory

import (
	"errors"
	"fmt"
	"unsafe"
)

// ErrFreed is returned when a block is used after Free.
var ErrFreed = errors.New("memory: block already freed")

// Block is an aligned region of memory. The backing array never moves once
// allocated, so Addr is stable for the block's lifetime.
type Block struct {
	raw   []byte // full allocation, including alignment slack
	data  []byte // aligned window handed out to callers
	align int
}

// Bytes returns the aligned region. It is nil after the block has been freed.
func (b *Block) Bytes() []byte {
	return b.data
}

// Len returns the usable size in bytes.
func (b *Block) Len() int {
	return len(b.data)
}

// Align returns the alignment the block was allocated with.
func (b *Block) Align() int {
	return b.align
}

// Addr returns the address of the first usable byte, or 0 for a freed or
// empty block.
func (b *Block) Addr() uintptr {
	if len(b.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b.data[0]))
}

// Freed reports whether the block has been released.
func (b *Block) Freed() bool {
	return b.data == nil
}

func (b *Block) String() string {
	return fmt.Sprintf("block{addr=%#x len=%d align=%d}", b.Addr(), b.Len(), b.align)
}

// NewBlock wraps an existing slice as a block. The caller guarantees the
// slice's alignment; align is only recorded.
func NewBlock(data []byte, align int) *Block {
	return &Block{raw: data, data: data, align: align}
}

// alignedSlice carves a size-byte window aligned to align out of a fresh
// allocation.
func alignedSlice(align, size int) ([]byte, []byte) {
	raw := make([]byte, size+align)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	off := 0
	if rem := int(addr % uintptr(align)); rem != 0 {
		off = align - rem
	}
	return raw, raw[off : off+size : off+size]
}
