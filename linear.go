/* This program is free software. It comes without any warranty, to
 * the extent permitted by applicable law. You can redistribute it
 * and/or modify it under the terms of the Do What The Fuck You Want
 * To Public License, Version 2, as published by Sam Hocevar. See
 * http://sam.zoy.org/wtfpl/COPYING for more details. */

package fixedalloc

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
)

// LinearAllocator is a monotonic bump-pointer allocator. It never frees
// individual allocations; the only way to reclaim space is Reset.
type LinearAllocator struct {
	AllocatorBase

	buf  []byte
	base uintptr
	size uintptr

	offset int64 // bytes in use; also the bump cursor
}

var _ Allocator = (*LinearAllocator)(nil)

// NewLinearAllocator allocates a buffer of bufferSize bytes and returns a
// LinearAllocator over it.
func NewLinearAllocator(bufferSize uintptr) (*LinearAllocator, error) {
	if bufferSize == 0 {
		return nil, errors.Wrap(ErrInvalidBufferSize, "NewLinearAllocator")
	}

	buf := make([]byte, bufferSize)
	a := &LinearAllocator{
		buf:  buf,
		base: uintptr(unsafe.Pointer(&buf[0])),
		size: bufferSize,
	}
	a.AllocatorBase.name = "LinearAllocator"
	return a, nil
}

// Allocate advances the bump pointer by the padding needed to satisfy
// alignment plus size, or returns nil without mutating state if that
// would exceed the buffer's capacity.
func (a *LinearAllocator) Allocate(size, alignment uintptr) unsafe.Pointer {
	requireAlignment(alignment)

	offset := uintptr(atomic.LoadInt64(&a.offset))
	addr := a.base + offset
	padding := paddingFor(addr, alignment)
	newOffset := offset + padding + size
	if newOffset > a.size {
		return nil
	}

	ptr := unsafe.Pointer(addr + padding)
	atomic.StoreInt64(&a.offset, int64(newOffset))
	a.incLiveCount(1)
	a.bumpPeak(int64(newOffset))
	return ptr
}

func (a *LinearAllocator) bumpPeak(newOffset int64) {
	for {
		peak := atomic.LoadInt64(&a.AllocatorBase.peak)
		if newOffset <= peak {
			return
		}
		if atomic.CompareAndSwapInt64(&a.AllocatorBase.peak, peak, newOffset) {
			return
		}
	}
}

// Free is a no-op: LinearAllocator does not support individual release.
func (a *LinearAllocator) Free(ptr unsafe.Pointer) {}

// Reallocate always allocates a fresh region and copies, because the
// user-visible size of an old region is only known as an upper bound.
func (a *LinearAllocator) Reallocate(ptr unsafe.Pointer, newSize, alignment uintptr) unsafe.Pointer {
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
	return newPtr
}

// AllocationSize returns the distance from ptr to the current offset end
// for owned pointers — an upper bound on the region's true size, since
// the linear allocator keeps no per-allocation size record.
func (a *LinearAllocator) AllocationSize(ptr unsafe.Pointer) uintptr {
	if ptr == nil || !a.Owns(ptr) {
		return 0
	}
	end := a.base + uintptr(atomic.LoadInt64(&a.offset))
	return end - uintptr(ptr)
}

// Owns reports whether ptr lies within [base, base+offset).
func (a *LinearAllocator) Owns(ptr unsafe.Pointer) bool {
	addr := uintptr(ptr)
	offset := uintptr(atomic.LoadInt64(&a.offset))
	return addr >= a.base && addr < a.base+offset
}

func (a *LinearAllocator) TotalAllocated() uintptr {
	return uintptr(atomic.LoadInt64(&a.offset))
}

func (a *LinearAllocator) PeakUsage() uintptr       { return a.peakUsage() }
func (a *LinearAllocator) AllocationCount() uintptr { return a.allocationCount() }

func (a *LinearAllocator) FragmentationPercentage() float64 { return 0 }

// Reset rewinds offset and allocation count to zero. Peak usage is left
// untouched; callers that want it cleared too can read it before Reset.
func (a *LinearAllocator) Reset() {
	atomic.StoreInt64(&a.offset, 0)
	a.resetCounters()
}

func (a *LinearAllocator) Name() string         { return a.name_() }
func (a *LinearAllocator) SetName(name string)  { a.setName(name) }
func (a *LinearAllocator) ThreadSafe() bool     { return a.threadSafe_() }
func (a *LinearAllocator) SetThreadSafe(s bool) { a.setThreadSafe(s) }

// ValidateInternalState checks the one invariant a linear allocator can
// violate: the offset must never exceed capacity.
func (a *LinearAllocator) ValidateInternalState() bool {
	return uintptr(atomic.LoadInt64(&a.offset)) <= a.size
}

func (a *LinearAllocator) DetailedStats() string {
	return fmt.Sprintf(
		"LinearAllocator Stats:\nTotal Size: %d\nUsed: %d\nPeak Usage: %d\nAllocation Count: %d\n",
		a.size, a.TotalAllocated(), a.PeakUsage(), a.AllocationCount())
}
