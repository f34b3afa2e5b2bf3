/* This program is free software. It comes without any warranty, to
 * the extent permitted by applicable law. You can redistribute it
 * and/or modify it under the terms of the Do What The Fuck You Want
 * To Public License, Version 2, as published by Sam Hocevar. See
 * http://sam.zoy.org/wtfpl/COPYING for more details. */

package fixedalloc

import (
	"testing"
	"unsafe"
)

func TestLinearAllocatorBasic(t *testing.T) {
	a, err := NewLinearAllocator(1024)
	if err != nil {
		t.Fatalf("NewLinearAllocator: %v", err)
	}

	p := a.Allocate(100, 8)
	if p == nil {
		t.Fatal("Allocate returned nil")
	}
	if a.TotalAllocated() < 100 {
		t.Fatalf("TotalAllocated = %d, want >= 100", a.TotalAllocated())
	}
	if !a.Owns(p) {
		t.Fatal("Owns(p) = false for a pointer it just returned")
	}
	if !a.ValidateInternalState() {
		t.Fatal("ValidateInternalState = false after a single allocation")
	}
}

// TestLinearAllocatorExhaustionScenario checks that a 128-byte buffer
// accepts a 100-byte allocation, rejects a subsequent 40-byte one, and
// reports TotalAllocated and PeakUsage both >= 100.
func TestLinearAllocatorExhaustionScenario(t *testing.T) {
	a, err := NewLinearAllocator(128)
	if err != nil {
		t.Fatalf("NewLinearAllocator: %v", err)
	}

	if p := a.Allocate(100, 8); p == nil {
		t.Fatal("Allocate(100, 8) returned nil")
	}
	if p := a.Allocate(40, 8); p != nil {
		t.Fatal("Allocate(40, 8) should fail: only 28 bytes remain of a 128-byte buffer")
	}
	if a.TotalAllocated() < 100 {
		t.Fatalf("TotalAllocated = %d, want >= 100", a.TotalAllocated())
	}
	if a.PeakUsage() < 100 {
		t.Fatalf("PeakUsage = %d, want >= 100", a.PeakUsage())
	}
}

func TestLinearAllocatorExhaustion(t *testing.T) {
	a, err := NewLinearAllocator(64)
	if err != nil {
		t.Fatalf("NewLinearAllocator: %v", err)
	}

	if p := a.Allocate(128, 8); p != nil {
		t.Fatal("Allocate should return nil when the request exceeds capacity")
	}
}

func TestLinearAllocatorFreeIsNoop(t *testing.T) {
	a, _ := NewLinearAllocator(256)
	p := a.Allocate(32, 8)
	before := a.TotalAllocated()
	a.Free(p)
	if a.TotalAllocated() != before {
		t.Fatalf("Free moved TotalAllocated from %d to %d; linear allocators never reclaim individual allocations", before, a.TotalAllocated())
	}
}

func TestLinearAllocatorReset(t *testing.T) {
	a, _ := NewLinearAllocator(256)
	a.Allocate(100, 8)
	peakBefore := a.PeakUsage()

	a.Reset()
	if a.TotalAllocated() != 0 {
		t.Fatalf("TotalAllocated after Reset = %d, want 0", a.TotalAllocated())
	}
	if a.PeakUsage() != peakBefore {
		t.Fatalf("PeakUsage after Reset = %d, want unchanged %d", a.PeakUsage(), peakBefore)
	}

	p := a.Allocate(50, 8)
	if p == nil {
		t.Fatal("Allocate after Reset returned nil")
	}
}

func TestLinearAllocatorAlignment(t *testing.T) {
	a, _ := NewLinearAllocator(4096)
	for _, align := range []uintptr{8, 16, 32, 64} {
		p := a.Allocate(1, align)
		if p == nil {
			t.Fatalf("Allocate(1, %d) returned nil", align)
		}
		if uintptr(p)%align != 0 {
			t.Fatalf("Allocate(1, %d) returned unaligned pointer %v", align, p)
		}
	}
}

func TestLinearAllocatorBadAlignmentPanics(t *testing.T) {
	a, _ := NewLinearAllocator(64)
	defer func() {
		if recover() == nil {
			t.Fatal("Allocate with a non-power-of-two alignment did not panic")
		}
	}()
	a.Allocate(8, 3)
}

func TestLinearAllocatorReallocateAlwaysCopies(t *testing.T) {
	a, _ := NewLinearAllocator(256)
	p := a.Allocate(16, 8)
	*(*byte)(p) = 0xAB

	q := a.Reallocate(p, 32, 8)
	if q == nil {
		t.Fatal("Reallocate returned nil")
	}
	if q == p {
		t.Fatal("Reallocate reused the same address; a linear allocator cannot grow in place")
	}
	if *(*byte)(q) != 0xAB {
		t.Fatal("Reallocate did not preserve the original content")
	}
}

func TestLinearAllocatorUnsafePointerRoundTrip(t *testing.T) {
	a, _ := NewLinearAllocator(128)
	p := a.Allocate(unsafe.Sizeof(int64(0)), 8)
	*(*int64)(p) = 42
	if *(*int64)(p) != 42 {
		t.Fatal("round-trip through the returned pointer lost the stored value")
	}
}
