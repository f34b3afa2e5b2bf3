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

// stackHeader precedes every live allocation in a StackAllocator. It
// records enough to rewind the bump pointer on Free and to recover the
// allocation's nominal size on AllocationSize/Reallocate.
type stackHeader struct {
	size       uintptr
	adjustment uintptr // distance from the allocation's start (offset before Allocate) to the returned address
}

const stackHeaderSize = unsafe.Sizeof(stackHeader{})

// StackAllocator is an offset-based allocator like LinearAllocator, but
// every allocation is preceded by a header that lets Free rewind the
// offset — provided frees happen in strict LIFO order. A marker stack
// supports releasing many allocations made after a snapshot in one call.
type StackAllocator struct {
	AllocatorBase

	buf  []byte
	base uintptr
	size uintptr

	offset  uintptr
	markers []uintptr
}

var _ Allocator = (*StackAllocator)(nil)

// NewStackAllocator allocates a buffer of bufferSize bytes and returns a
// StackAllocator over it.
func NewStackAllocator(bufferSize uintptr) (*StackAllocator, error) {
	if bufferSize == 0 {
		return nil, errors.Wrap(ErrInvalidBufferSize, "NewStackAllocator")
	}

	buf := make([]byte, bufferSize)
	a := &StackAllocator{
		buf:  buf,
		base: uintptr(unsafe.Pointer(&buf[0])),
		size: bufferSize,
	}
	a.AllocatorBase.name = "StackAllocator"
	return a, nil
}

// Allocate places a stackHeader immediately before the aligned user
// address and advances the offset past it.
func (a *StackAllocator) Allocate(size, alignment uintptr) unsafe.Pointer {
	requireAlignment(alignment)

	headerAddr := a.base + a.offset
	userAddr := alignUp(headerAddr+stackHeaderSize, alignment)
	adjustment := userAddr - headerAddr
	newOffset := a.offset + adjustment + size

	if newOffset > a.size {
		return nil
	}

	header := (*stackHeader)(unsafe.Pointer(userAddr - stackHeaderSize))
	header.size = size
	header.adjustment = adjustment

	a.offset = newOffset
	a.incLiveCount(1)
	a.addAllocated(int64(size))

	return unsafe.Pointer(userAddr)
}

// Free rewinds the offset to where ptr's allocation began, before its
// header and any alignment padding ahead of the header. This is only
// correct when ptr is the most recently live allocation; freeing out of
// LIFO order corrupts the offset invariant (undefined behavior, per
// spec).
func (a *StackAllocator) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	header := (*stackHeader)(unsafe.Pointer(uintptr(ptr) - stackHeaderSize))
	a.offset = uintptr(ptr) - a.base - header.adjustment
	a.incLiveCount(-1)
	a.addAllocated(-int64(header.size))
}

// Reallocate grows in place when ptr's region ends exactly at the
// current offset; otherwise it allocates fresh, copies, and frees the
// old top (valid only when ptr is the most recent allocation).
func (a *StackAllocator) Reallocate(ptr unsafe.Pointer, newSize, alignment uintptr) unsafe.Pointer {
	if ptr == nil {
		return a.Allocate(newSize, alignment)
	}
	if newSize == 0 {
		a.Free(ptr)
		return nil
	}

	header := (*stackHeader)(unsafe.Pointer(uintptr(ptr) - stackHeaderSize))
	oldSize := header.size

	if uintptr(ptr)+oldSize == a.base+a.offset {
		if newSize >= oldSize {
			growth := newSize - oldSize
			if a.offset+growth > a.size {
				return nil
			}
			a.offset += growth
			header.size = newSize
			a.addAllocated(int64(growth))
			a.bumpPeakFromOffset()
		} else {
			shrink := oldSize - newSize
			a.offset -= shrink
			header.size = newSize
			a.addAllocated(-int64(shrink))
		}
		return ptr
	}

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

func (a *StackAllocator) bumpPeakFromOffset() {
	for {
		peak := atomic.LoadInt64(&a.AllocatorBase.peak)
		if int64(a.TotalAllocated()) <= peak {
			return
		}
		if atomic.CompareAndSwapInt64(&a.AllocatorBase.peak, peak, int64(a.TotalAllocated())) {
			return
		}
	}
}

// AllocationSize returns the header's recorded size for owned pointers.
func (a *StackAllocator) AllocationSize(ptr unsafe.Pointer) uintptr {
	if !a.Owns(ptr) {
		return 0
	}
	header := (*stackHeader)(unsafe.Pointer(uintptr(ptr) - stackHeaderSize))
	return header.size
}

// Owns reports whether ptr lies within [base, base+offset).
func (a *StackAllocator) Owns(ptr unsafe.Pointer) bool {
	addr := uintptr(ptr)
	return addr >= a.base && addr < a.base+a.offset
}

func (a *StackAllocator) TotalAllocated() uintptr           { return a.totalAllocated() }
func (a *StackAllocator) PeakUsage() uintptr                { return a.peakUsage() }
func (a *StackAllocator) AllocationCount() uintptr          { return a.allocationCount() }
func (a *StackAllocator) FragmentationPercentage() float64  { return 0 }

// Reset rewinds the offset, allocation count and marker stack to empty.
func (a *StackAllocator) Reset() {
	a.offset = 0
	a.markers = a.markers[:0]
	a.resetCounters()
}

func (a *StackAllocator) Name() string         { return a.name_() }
func (a *StackAllocator) SetName(name string)  { a.setName(name) }
func (a *StackAllocator) ThreadSafe() bool     { return a.threadSafe_() }
func (a *StackAllocator) SetThreadSafe(s bool) { a.setThreadSafe(s) }

// ValidateInternalState checks that the offset never exceeds capacity.
func (a *StackAllocator) ValidateInternalState() bool {
	return a.offset <= a.size
}

func (a *StackAllocator) DetailedStats() string {
	return fmt.Sprintf(
		"StackAllocator Stats:\nTotal Size: %d\nUsed: %d\nPeak Usage: %d\nAllocation Count: %d\nMarker Count: %d\n",
		a.size, a.offset, a.PeakUsage(), a.AllocationCount(), len(a.markers))
}

// Marker returns the current offset, usable later with FreeToMarker.
func (a *StackAllocator) Marker() uintptr { return a.offset }

// FreeToMarker rewinds the offset to marker, when marker <= offset. It
// does not reconcile the allocation count or byte counters against the
// allocations being dropped; recomputing those would mean walking every
// header between marker and the current offset on every rewind.
func (a *StackAllocator) FreeToMarker(marker uintptr) {
	if marker <= a.offset {
		a.offset = marker
	}
}

// PushMarker snapshots the current offset onto the marker stack.
func (a *StackAllocator) PushMarker() {
	a.markers = append(a.markers, a.offset)
}

// PopMarker pops the most recently pushed marker and rewinds to it.
func (a *StackAllocator) PopMarker() {
	if len(a.markers) == 0 {
		return
	}
	last := a.markers[len(a.markers)-1]
	a.markers = a.markers[:len(a.markers)-1]
	a.FreeToMarker(last)
}
