/* This program is free software. It comes without any warranty, to
 * the extent permitted by applicable law. You can redistribute it
 * and/or modify it under the terms of the Do What The Fuck You Want
 * To Public License, Version 2, as published by Sam Hocevar. See
 * http://sam.zoy.org/wtfpl/COPYING for more details. */

package fixedalloc

import (
	"sync/atomic"
	"unsafe"
)

// Allocator is the capability set every fixed-buffer strategy in this
// package satisfies. It is a capability set, not an inheritance
// hierarchy: callers select an implementation at construction time and
// use it polymorphically through this interface.
type Allocator interface {
	// Allocate returns a pointer to at least size bytes aligned to
	// alignment (must be a power of two, or Allocate panics), or nil on
	// exhaustion. It never errors for exhaustion.
	Allocate(size, alignment uintptr) unsafe.Pointer

	// Free accepts nil as a no-op. ptr must have come from this
	// allocator's Allocate/Reallocate and not yet been freed; anything
	// else is undefined behavior.
	Free(ptr unsafe.Pointer)

	// Reallocate treats a nil ptr as Allocate, and newSize == 0 as Free
	// followed by a nil return. Otherwise it returns a region of at
	// least newSize bytes preserving min(oldSize, newSize) bytes of the
	// original content, possibly at the same address.
	Reallocate(ptr unsafe.Pointer, newSize, alignment uintptr) unsafe.Pointer

	// AllocationSize returns the usable size of the region associated
	// with ptr, or 0 for nil or unowned pointers.
	AllocationSize(ptr unsafe.Pointer) uintptr

	// Owns reports whether ptr lies inside this allocator's managed
	// region.
	Owns(ptr unsafe.Pointer) bool

	// TotalAllocated is the current count of live, in-use bytes.
	TotalAllocated() uintptr

	// PeakUsage is the maximum TotalAllocated observed since
	// construction. Reset does not clear it.
	PeakUsage() uintptr

	// AllocationCount is the number of live allocations.
	AllocationCount() uintptr

	// FragmentationPercentage is defined per strategy; see each
	// implementation's doc comment.
	FragmentationPercentage() float64

	// Reset returns the allocator to empty and invalidates every
	// outstanding pointer.
	Reset()

	// Name and SetName are an opaque diagnostic label.
	Name() string
	SetName(name string)

	// ThreadSafe and SetThreadSafe declare whether concurrent calls are
	// safe. See each strategy's doc comment — the declaration is
	// advisory for three of the four strategies.
	ThreadSafe() bool
	SetThreadSafe(safe bool)

	// ValidateInternalState checks every invariant the strategy
	// maintains and reports whether they all hold.
	ValidateInternalState() bool

	// DetailedStats renders a human-readable diagnostic report. Its
	// exact text is implementation-defined; only its information
	// content is part of the contract.
	DetailedStats() string
}

// AllocatorBase holds the counter and naming state shared by every
// strategy in this package, so each strategy only has to embed it instead
// of re-declaring the same three atomic counters four times. Counters are
// mutated with relaxed-ordering atomics: reads are race-free per-scalar,
// but this says nothing about the structural state (offsets, freelists,
// buffer contents), which each strategy guards on its own terms.
type AllocatorBase struct {
	name       string
	threadSafe int32
	allocated  int64
	peak       int64
	liveCount  int64
}

func (b *AllocatorBase) totalAllocated() uintptr { return uintptr(atomic.LoadInt64(&b.allocated)) }
func (b *AllocatorBase) peakUsage() uintptr      { return uintptr(atomic.LoadInt64(&b.peak)) }
func (b *AllocatorBase) allocationCount() uintptr { return uintptr(atomic.LoadInt64(&b.liveCount)) }

func (b *AllocatorBase) addAllocated(delta int64) {
	newVal := atomic.AddInt64(&b.allocated, delta)
	for {
		peak := atomic.LoadInt64(&b.peak)
		if newVal <= peak {
			return
		}
		if atomic.CompareAndSwapInt64(&b.peak, peak, newVal) {
			return
		}
	}
}

func (b *AllocatorBase) incLiveCount(delta int64) {
	atomic.AddInt64(&b.liveCount, delta)
}

func (b *AllocatorBase) resetCounters() {
	atomic.StoreInt64(&b.allocated, 0)
	atomic.StoreInt64(&b.liveCount, 0)
	// peak is intentionally left untouched by default; strategies that
	// want peak cleared on Reset call resetCountersAndPeak instead.
}

func (b *AllocatorBase) resetCountersAndPeak() {
	b.resetCounters()
	atomic.StoreInt64(&b.peak, 0)
}

func (b *AllocatorBase) name_() string { return b.name }
func (b *AllocatorBase) setName(n string) {
	b.name = n
}

func (b *AllocatorBase) threadSafe_() bool { return atomic.LoadInt32(&b.threadSafe) != 0 }
func (b *AllocatorBase) setThreadSafe(safe bool) {
	if safe {
		atomic.StoreInt32(&b.threadSafe, 1)
	} else {
		atomic.StoreInt32(&b.threadSafe, 0)
	}
}

// isPowerOfTwo reports whether n is a nonzero power of two.
func isPowerOfTwo(n uintptr) bool {
	return n != 0 && n&(n-1) == 0
}

// requireAlignment panics if alignment is not a power of two, matching
// how the standard library treats similarly-invalid alignment
// preconditions.
func requireAlignment(alignment uintptr) {
	if !isPowerOfTwo(alignment) {
		panic("fixedalloc: alignment must be a power of two")
	}
}
