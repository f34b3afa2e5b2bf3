/* This program is free software. It comes without any warranty, to
 * the extent permitted by applicable law. You can redistribute it
 * and/or modify it under the terms of the Do What The Fuck You Want
 * To Public License, Version 2, as published by Sam Hocevar. See
 * http://sam.zoy.org/wtfpl/COPYING for more details. */

package fixedalloc

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// DefaultPoolAlignment is the alignment every pool slab is aligned to and
// every class's BlockSize must be a multiple of. 16 bytes is enough to
// hold two 8-byte pointers on a 64-bit machine.
const DefaultPoolAlignment = 16

// pointerSize is the minimum usable BlockSize: an idle block must have
// room for one intrusive freelist link.
const pointerSize = unsafe.Sizeof(uintptr(0))

// SizeClass declares one fixed-size sub-pool: BlockCount blocks of
// BlockSize bytes each.
type SizeClass struct {
	BlockSize  uintptr
	BlockCount uintptr
}

type subPool struct {
	slab       []byte
	base       uintptr
	blockSize  uintptr
	blockCount uintptr
	freeHead   uintptr // address of the first free block, 0 if empty
	freeCount  uintptr
}

func blockNext(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

func setBlockNext(addr, next uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = next
}

func (p *subPool) rebuildFreelist() {
	p.freeHead = 0
	p.freeCount = p.blockCount
	// Link in descending address order so the freelist head ends up
	// pointing at the lowest address, matching Reset's "address order"
	// requirement from spec.
	for i := p.blockCount; i > 0; i-- {
		addr := p.base + (i-1)*p.blockSize
		setBlockNext(addr, p.freeHead)
		p.freeHead = addr
	}
}

func (p *subPool) owns(addr uintptr) bool {
	return addr >= p.base && addr < p.base+p.blockCount*p.blockSize
}

func (p *subPool) pop() uintptr {
	if p.freeHead == 0 {
		return 0
	}
	addr := p.freeHead
	p.freeHead = blockNext(addr)
	p.freeCount--
	return addr
}

func (p *subPool) push(addr uintptr) {
	setBlockNext(addr, p.freeHead)
	p.freeHead = addr
	p.freeCount++
}

// PoolAllocator manages a set of fixed-size-class sub-pools, each an
// intrusive singly-linked freelist threaded through its own idle blocks.
type PoolAllocator struct {
	AllocatorBase

	mu      sync.Mutex
	classes []*subPool
}

var _ Allocator = (*PoolAllocator)(nil)

// NewPoolAllocator builds a PoolAllocator from an ordered list of size
// classes. Allocate searches classes in this declared order. Every
// BlockSize must be at least pointerSize (so a freelist link fits in an
// idle block) and a multiple of DefaultPoolAlignment (so every block in
// every slab lands on an aligned boundary).
func NewPoolAllocator(classes []SizeClass) (*PoolAllocator, error) {
	if len(classes) == 0 {
		return nil, errors.Wrap(ErrInvalidSizeClass, "NewPoolAllocator: no classes declared")
	}

	a := &PoolAllocator{}
	a.AllocatorBase.name = "PoolAllocator"

	for i, c := range classes {
		if c.BlockSize < pointerSize {
			return nil, errors.Wrapf(ErrInvalidSizeClass, "class %d: block size %d smaller than a pointer", i, c.BlockSize)
		}
		if c.BlockSize%DefaultPoolAlignment != 0 {
			return nil, errors.Wrapf(ErrInvalidSizeClass, "class %d: block size %d not a multiple of %d", i, c.BlockSize, DefaultPoolAlignment)
		}
		if c.BlockCount == 0 {
			return nil, errors.Wrapf(ErrInvalidSizeClass, "class %d: block count is zero", i)
		}

		slabSize := c.BlockSize*c.BlockCount + DefaultPoolAlignment
		slab := make([]byte, slabSize)
		base := alignUp(uintptr(unsafe.Pointer(&slab[0])), DefaultPoolAlignment)

		p := &subPool{
			slab:       slab,
			base:       base,
			blockSize:  c.BlockSize,
			blockCount: c.BlockCount,
		}
		p.rebuildFreelist()
		a.classes = append(a.classes, p)
	}

	return a, nil
}

func (a *PoolAllocator) lock() {
	if a.ThreadSafe() {
		a.mu.Lock()
	}
}

func (a *PoolAllocator) unlock() {
	if a.ThreadSafe() {
		a.mu.Unlock()
	}
}

// findClass returns the index of the first declared class whose
// BlockSize fits size, or ErrNoSizeClass if the request exceeds every
// class. Alignment requests beyond DefaultPoolAlignment cannot be
// satisfied by any class and are also reported as no fit.
func (a *PoolAllocator) findClass(size, alignment uintptr) (int, error) {
	if alignment > DefaultPoolAlignment {
		return -1, errors.Wrapf(ErrNoSizeClass, "alignment %d exceeds pool alignment %d", alignment, DefaultPoolAlignment)
	}
	for i, p := range a.classes {
		if p.blockSize >= size {
			return i, nil
		}
	}
	return -1, errors.Wrapf(ErrNoSizeClass, "no class fits size %d", size)
}

// ClassFor exposes the same class lookup Allocate performs internally,
// letting a caller distinguish "no class this large exists" from
// "that class's freelist is currently empty" instead of only ever
// observing nil from Allocate.
func (a *PoolAllocator) ClassFor(size uintptr) (SizeClass, error) {
	a.lock()
	defer a.unlock()

	idx, err := a.findClass(size, DefaultPoolAlignment)
	if err != nil {
		return SizeClass{}, err
	}
	p := a.classes[idx]
	return SizeClass{BlockSize: p.blockSize, BlockCount: p.blockCount}, nil
}

// Allocate finds the first declared class whose BlockSize fits size and
// pops a block from that class's freelist, or returns nil if no class
// fits or the fitting class's freelist is empty.
func (a *PoolAllocator) Allocate(size, alignment uintptr) unsafe.Pointer {
	requireAlignment(alignment)

	a.lock()
	defer a.unlock()

	idx, err := a.findClass(size, alignment)
	if err != nil {
		return nil
	}
	p := a.classes[idx]
	addr := p.pop()
	if addr == 0 {
		return nil
	}

	a.addAllocated(int64(p.blockSize))
	a.incLiveCount(1)
	return unsafe.Pointer(addr)
}

// Free locates the owning class by address-range test and pushes the
// block back onto that class's freelist. Double-free or a foreign
// pointer is undefined behavior.
func (a *PoolAllocator) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	a.lock()
	defer a.unlock()

	addr := uintptr(ptr)
	for _, p := range a.classes {
		if p.owns(addr) {
			p.push(addr)
			a.addAllocated(-int64(p.blockSize))
			a.incLiveCount(-1)
			return
		}
	}
}

// Reallocate allocates fresh, copies min(oldClassSize, newSize), and
// frees the old block.
func (a *PoolAllocator) Reallocate(ptr unsafe.Pointer, newSize, alignment uintptr) unsafe.Pointer {
	if ptr == nil {
		return a.Allocate(newSize, alignment)
	}
	if newSize == 0 {
		a.Free(ptr)
		return nil
	}

	oldSize := a.AllocationSize(ptr)
	newPtr := a.Allocate(newSize, alignment)
	if newPtr == nil {
		return nil
	}
	n := oldSize
	if newSize < n {
		n = newSize
	}
	copyBytes(newPtr, ptr, n)
	a.Free(ptr)
	return newPtr
}

// AllocationSize returns the owning class's BlockSize, not the size
// originally requested.
func (a *PoolAllocator) AllocationSize(ptr unsafe.Pointer) uintptr {
	if ptr == nil {
		return 0
	}
	a.lock()
	defer a.unlock()

	addr := uintptr(ptr)
	for _, p := range a.classes {
		if p.owns(addr) {
			return p.blockSize
		}
	}
	return 0
}

// Owns reports whether ptr lies inside any of this pool's slabs.
func (a *PoolAllocator) Owns(ptr unsafe.Pointer) bool {
	a.lock()
	defer a.unlock()

	addr := uintptr(ptr)
	for _, p := range a.classes {
		if p.owns(addr) {
			return true
		}
	}
	return false
}

func (a *PoolAllocator) TotalAllocated() uintptr  { return a.totalAllocated() }
func (a *PoolAllocator) PeakUsage() uintptr       { return a.peakUsage() }
func (a *PoolAllocator) AllocationCount() uintptr { return a.allocationCount() }

// FragmentationPercentage is always 0: class-internal fragmentation
// (requested size vs. class BlockSize) is not reported here.
func (a *PoolAllocator) FragmentationPercentage() float64 { return 0 }

// Reset rebuilds every class's freelist to contain all of its blocks, in
// address order, and zeroes the allocated-bytes and live-count counters.
// Peak usage is kept.
func (a *PoolAllocator) Reset() {
	a.lock()
	defer a.unlock()

	for _, p := range a.classes {
		p.rebuildFreelist()
	}
	a.resetCounters()
}

func (a *PoolAllocator) Name() string {
	a.lock()
	defer a.unlock()
	return a.name_()
}

func (a *PoolAllocator) SetName(name string) {
	a.lock()
	defer a.unlock()
	a.setName(name)
}

func (a *PoolAllocator) ThreadSafe() bool     { return a.threadSafe_() }
func (a *PoolAllocator) SetThreadSafe(s bool) { a.setThreadSafe(s) }

// ValidateInternalState checks, per sub-pool, that walking the freelist
// finds exactly freeCount blocks and never more than the declared block
// count.
func (a *PoolAllocator) ValidateInternalState() bool {
	a.lock()
	defer a.unlock()

	for _, p := range a.classes {
		seen := uintptr(0)
		for addr := p.freeHead; addr != 0; addr = blockNext(addr) {
			seen++
			if seen > p.blockCount {
				return false // cycle or corruption
			}
		}
		if seen != p.freeCount {
			return false
		}
	}
	return true
}

// DetailedStats reports, per class, its block size, block count, free
// count and in-use count.
func (a *PoolAllocator) DetailedStats() string {
	a.lock()
	defer a.unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "PoolAllocator Stats (%q):\n", a.name_())
	for i, p := range a.classes {
		inUse := p.blockCount - p.freeCount
		fmt.Fprintf(&b, "  Class %d: block_size=%d block_count=%d free_count=%d in_use_count=%d\n",
			i, p.blockSize, p.blockCount, p.freeCount, inUse)
	}
	return b.String()
}
