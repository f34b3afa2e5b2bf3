/* This program is free software. It comes without any warranty, to
 * the extent permitted by applicable law. You can redistribute it
 * and/or modify it under the terms of the Do What The Fuck You Want
 * To Public License, Version 2, as published by Sam Hocevar. See
 * http://sam.zoy.org/wtfpl/COPYING for more details. */

package fixedalloc

import "testing"

// conformanceSubjects builds one fresh instance of every strategy behind
// the common Allocator interface, each sized so the scenarios below fit
// comfortably.
func conformanceSubjects(t *testing.T) map[string]Allocator {
	t.Helper()

	linear, err := NewLinearAllocator(8192)
	if err != nil {
		t.Fatalf("NewLinearAllocator: %v", err)
	}
	stack, err := NewStackAllocator(8192)
	if err != nil {
		t.Fatalf("NewStackAllocator: %v", err)
	}
	pool, err := NewPoolAllocator([]SizeClass{
		{BlockSize: 16, BlockCount: 64},
		{BlockSize: 64, BlockCount: 32},
		{BlockSize: 256, BlockCount: 16},
	})
	if err != nil {
		t.Fatalf("NewPoolAllocator: %v", err)
	}
	freeList, err := NewFreeListAllocator(8192)
	if err != nil {
		t.Fatalf("NewFreeListAllocator: %v", err)
	}

	return map[string]Allocator{
		"Linear":   linear,
		"Stack":    stack,
		"Pool":     pool,
		"FreeList": freeList,
	}
}

// TestConformanceAllocateThenValidate checks that a single successful
// allocation always leaves the allocator internally consistent and
// reports at least the requested number of live bytes.
func TestConformanceAllocateThenValidate(t *testing.T) {
	for name, a := range conformanceSubjects(t) {
		t.Run(name, func(t *testing.T) {
			p := a.Allocate(32, 8)
			if p == nil {
				t.Fatal("Allocate(32, 8) returned nil")
			}
			if !a.ValidateInternalState() {
				t.Fatal("ValidateInternalState = false after one allocation")
			}
			if a.TotalAllocated() < 32 {
				t.Fatalf("TotalAllocated = %d, want >= 32", a.TotalAllocated())
			}
			if a.AllocationCount() != 1 {
				t.Fatalf("AllocationCount = %d, want 1", a.AllocationCount())
			}
		})
	}
}

// TestConformanceExhaustionReturnsNilNotPanic checks that asking for
// more than the buffer can possibly hold returns nil and never panics,
// and leaves the allocator usable.
func TestConformanceExhaustionReturnsNilNotPanic(t *testing.T) {
	for name, a := range conformanceSubjects(t) {
		t.Run(name, func(t *testing.T) {
			if p := a.Allocate(1<<32, 8); p != nil {
				t.Fatal("Allocate with an impossible size did not return nil")
			}
			if !a.ValidateInternalState() {
				t.Fatal("ValidateInternalState = false after a failed allocation")
			}
			if p := a.Allocate(8, 8); p == nil {
				t.Fatal("allocator unusable after a prior failed allocation")
			}
		})
	}
}

// TestConformanceOwnsIsConsistent checks that every pointer an
// allocator hands back is reported as owned, and addresses clearly
// outside any managed buffer are not.
func TestConformanceOwnsIsConsistent(t *testing.T) {
	for name, a := range conformanceSubjects(t) {
		t.Run(name, func(t *testing.T) {
			p := a.Allocate(16, 8)
			if p == nil {
				t.Fatal("Allocate(16, 8) returned nil")
			}
			if !a.Owns(p) {
				t.Fatal("Owns(p) = false for a pointer this allocator just returned")
			}
			if a.Owns(nil) {
				t.Fatal("Owns(nil) = true")
			}
		})
	}
}

// TestConformanceResetReturnsToEmpty checks that after Reset, zero
// bytes and zero allocations are live, and the allocator's internal
// state still validates.
func TestConformanceResetReturnsToEmpty(t *testing.T) {
	for name, a := range conformanceSubjects(t) {
		t.Run(name, func(t *testing.T) {
			a.Allocate(64, 8)
			a.Allocate(64, 8)

			a.Reset()
			if a.TotalAllocated() != 0 {
				t.Fatalf("TotalAllocated after Reset = %d, want 0", a.TotalAllocated())
			}
			if a.AllocationCount() != 0 {
				t.Fatalf("AllocationCount after Reset = %d, want 0", a.AllocationCount())
			}
			if !a.ValidateInternalState() {
				t.Fatal("ValidateInternalState = false after Reset")
			}
		})
	}
}

// TestConformancePeakUsageNeverDecreasesOnAllocation checks that peak
// tracks the high-water mark, and never drops below any total-allocated
// value actually observed so far in the run.
func TestConformancePeakUsageNeverDecreasesOnAllocation(t *testing.T) {
	for name, a := range conformanceSubjects(t) {
		t.Run(name, func(t *testing.T) {
			var observedMax uintptr
			for i := 0; i < 8; i++ {
				if p := a.Allocate(32, 8); p == nil {
					break
				}
				if got := a.TotalAllocated(); got > observedMax {
					observedMax = got
				}
				if a.PeakUsage() < observedMax {
					t.Fatalf("PeakUsage %d dropped below an observed total-allocated value %d", a.PeakUsage(), observedMax)
				}
			}
		})
	}
}

// TestConformanceNilPointerOperationsAreNoops checks that Free(nil)
// and AllocationSize(nil) never panic and have no observable effect.
func TestConformanceNilPointerOperationsAreNoops(t *testing.T) {
	for name, a := range conformanceSubjects(t) {
		t.Run(name, func(t *testing.T) {
			before := a.TotalAllocated()
			a.Free(nil)
			if a.TotalAllocated() != before {
				t.Fatalf("Free(nil) changed TotalAllocated from %d to %d", before, a.TotalAllocated())
			}
			if size := a.AllocationSize(nil); size != 0 {
				t.Fatalf("AllocationSize(nil) = %d, want 0", size)
			}
		})
	}
}

// TestConformanceBadAlignmentPanics is the alignment edge case common to
// every strategy: any non-power-of-two alignment panics rather than
// silently misbehaving.
func TestConformanceBadAlignmentPanics(t *testing.T) {
	for name, a := range conformanceSubjects(t) {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("Allocate with alignment 6 did not panic")
				}
			}()
			a.Allocate(8, 6)
		})
	}
}

// TestConformanceNameRoundTrips checks the opaque diagnostic label every
// strategy carries.
func TestConformanceNameRoundTrips(t *testing.T) {
	for name, a := range conformanceSubjects(t) {
		t.Run(name, func(t *testing.T) {
			a.SetName("scratch-arena")
			if got := a.Name(); got != "scratch-arena" {
				t.Fatalf("Name() = %q, want %q", got, "scratch-arena")
			}
		})
	}
}
