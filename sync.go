/* This program is free software. It comes without any warranty, to
 * the extent permitted by applicable law. You can redistribute it
 * and/or modify it under the terms of the Do What The Fuck You Want
 * To Public License, Version 2, as published by Sam Hocevar. See
 * http://sam.zoy.org/wtfpl/COPYING for more details. */

package fixedalloc

import (
	"sync"
	"unsafe"
)

// Synchronized wraps any Allocator with one mutex guarding every method
// call, turning the advisory ThreadSafe flag three of the four strategies
// carry into an actual guarantee. Wrap when callers genuinely share one
// allocator across goroutines instead of giving each goroutine its own.
type Synchronized struct {
	mu        sync.Mutex
	allocator Allocator
}

var _ Allocator = (*Synchronized)(nil)

// NewSynchronized wraps allocator. It also calls allocator.SetThreadSafe(true)
// so the wrapped allocator's own ThreadSafe reports true as well.
func NewSynchronized(allocator Allocator) *Synchronized {
	allocator.SetThreadSafe(true)
	return &Synchronized{allocator: allocator}
}

func (s *Synchronized) Allocate(size, alignment uintptr) unsafe.Pointer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocator.Allocate(size, alignment)
}

func (s *Synchronized) Free(ptr unsafe.Pointer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocator.Free(ptr)
}

func (s *Synchronized) Reallocate(ptr unsafe.Pointer, newSize, alignment uintptr) unsafe.Pointer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocator.Reallocate(ptr, newSize, alignment)
}

func (s *Synchronized) AllocationSize(ptr unsafe.Pointer) uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocator.AllocationSize(ptr)
}

func (s *Synchronized) Owns(ptr unsafe.Pointer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocator.Owns(ptr)
}

func (s *Synchronized) TotalAllocated() uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocator.TotalAllocated()
}

func (s *Synchronized) PeakUsage() uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocator.PeakUsage()
}

func (s *Synchronized) AllocationCount() uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocator.AllocationCount()
}

func (s *Synchronized) FragmentationPercentage() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocator.FragmentationPercentage()
}

func (s *Synchronized) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocator.Reset()
}

func (s *Synchronized) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocator.Name()
}

func (s *Synchronized) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocator.SetName(name)
}

// ThreadSafe always reports true: the wrapper makes it so regardless of
// what the wrapped allocator declares.
func (s *Synchronized) ThreadSafe() bool { return true }

// SetThreadSafe is a no-op: a Synchronized is always thread-safe by
// construction and cannot be told otherwise.
func (s *Synchronized) SetThreadSafe(bool) {}

func (s *Synchronized) ValidateInternalState() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocator.ValidateInternalState()
}

func (s *Synchronized) DetailedStats() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocator.DetailedStats()
}

// Unwrap returns the wrapped allocator, for callers that need type
// assertions to a concrete strategy (e.g. StackAllocator's marker API).
func (s *Synchronized) Unwrap() Allocator {
	return s.allocator
}
