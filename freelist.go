/* This program is free software. It comes without any warranty, to
 * the extent permitted by applicable law. You can redistribute it
 * and/or modify it under the terms of the Do What The Fuck You Want
 * To Public License, Version 2, as published by Sam Hocevar. See
 * http://sam.zoy.org/wtfpl/COPYING for more details. */

package fixedalloc

import (
	"fmt"
	"unsafe"

	"github.com/pkg/errors"
)

// freeBlockDesc overlays the head of an idle region: its size and a link
// to the next idle region, sorted by ascending address.
type freeBlockDesc struct {
	size uintptr
	next uintptr // address of next free block, 0 if none
}

// allocHeader precedes every live allocation: the total physical span it
// occupies (including the header itself, alignment padding, and the
// portion of the block that used to be a freeBlockDesc), and the
// distance from the block's start to the header's start.
type allocHeader struct {
	size    uintptr
	padding uintptr
}

var (
	freeBlockDescSize = unsafe.Sizeof(freeBlockDesc{})
	allocHeaderSize   = unsafe.Sizeof(allocHeader{})
)

// minFreeBlockSize is the smallest size a free block may have: a split
// never leaves behind a fragment too small to describe itself.
func minFreeBlockSize() uintptr { return freeBlockDescSize }

func readFreeBlock(addr uintptr) *freeBlockDesc {
	return (*freeBlockDesc)(unsafe.Pointer(addr))
}

func readAllocHeader(addr uintptr) *allocHeader {
	return (*allocHeader)(unsafe.Pointer(addr))
}

// FreeListAllocator is a first-fit allocator over a sorted singly-linked
// freelist, with split-on-allocate and boundary-tag coalesce-on-free.
type FreeListAllocator struct {
	AllocatorBase

	buf  []byte
	base uintptr
	size uintptr

	freeHead uintptr // address of the first free block, 0 if none
}

var _ Allocator = (*FreeListAllocator)(nil)

// NewFreeListAllocator allocates a buffer of bufferSize bytes, which must
// be large enough to hold one allocation header plus one minimum-size
// free block, and returns a FreeListAllocator over it starting as a
// single free block spanning the whole capacity.
func NewFreeListAllocator(bufferSize uintptr) (*FreeListAllocator, error) {
	if bufferSize < allocHeaderSize+minFreeBlockSize() {
		return nil, errors.Wrapf(ErrInvalidBufferSize,
			"NewFreeListAllocator: need at least %d bytes", allocHeaderSize+minFreeBlockSize())
	}

	buf := make([]byte, bufferSize)
	a := &FreeListAllocator{
		buf:  buf,
		base: uintptr(unsafe.Pointer(&buf[0])),
		size: bufferSize,
	}
	a.AllocatorBase.name = "FreeListAllocator"
	a.resetFreelist()
	return a, nil
}

func (a *FreeListAllocator) resetFreelist() {
	a.freeHead = a.base
	head := readFreeBlock(a.base)
	head.size = a.size
	head.next = 0
}

// Allocate walks the freelist first-fit: the first candidate block large
// enough to host an aligned header-plus-payload is split (or, if the
// residual would be too small to describe itself, absorbed whole).
func (a *FreeListAllocator) Allocate(size, alignment uintptr) unsafe.Pointer {
	requireAlignment(alignment)

	var prev uintptr
	current := a.freeHead

	for current != 0 {
		block := readFreeBlock(current)
		afterDescriptor := current + freeBlockDescSize
		aligned := alignUp(afterDescriptor+allocHeaderSize, alignment)
		paddingBeforeHeader := aligned - afterDescriptor
		required := size + allocHeaderSize + paddingBeforeHeader

		if block.size >= required {
			next := block.next
			if block.size-required <= minFreeBlockSize() {
				required = block.size
				a.unlinkFree(prev, next)
			} else {
				newBlockAddr := current + required
				newBlock := readFreeBlock(newBlockAddr)
				newBlock.size = block.size - required
				newBlock.next = next
				a.spliceFree(prev, newBlockAddr)
			}

			header := readAllocHeader(aligned - allocHeaderSize)
			header.size = required
			header.padding = (aligned - allocHeaderSize) - current

			a.addAllocated(int64(required))
			a.incLiveCount(1)
			return unsafe.Pointer(aligned)
		}

		prev = current
		current = block.next
	}

	return nil
}

func (a *FreeListAllocator) unlinkFree(prev, next uintptr) {
	if prev != 0 {
		readFreeBlock(prev).next = next
	} else {
		a.freeHead = next
	}
}

func (a *FreeListAllocator) spliceFree(prev, replacement uintptr) {
	if prev != 0 {
		readFreeBlock(prev).next = replacement
	} else {
		a.freeHead = replacement
	}
}

// Free reconstitutes a free block from ptr's header, inserts it at the
// correct sorted position, and coalesces with either neighbor when they
// are contiguous.
func (a *FreeListAllocator) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	headerAddr := uintptr(ptr) - allocHeaderSize
	header := readAllocHeader(headerAddr)
	blockStart := headerAddr - header.padding
	blockSize := header.size

	newBlock := readFreeBlock(blockStart)
	newBlock.size = blockSize
	newBlock.next = 0

	var prev uintptr
	current := a.freeHead
	for current != 0 && current < blockStart {
		prev = current
		current = readFreeBlock(current).next
	}

	newBlock.next = current
	if prev != 0 {
		readFreeBlock(prev).next = blockStart
	} else {
		a.freeHead = blockStart
	}

	if current != 0 && blockStart+newBlock.size == current {
		succ := readFreeBlock(current)
		newBlock.size += succ.size
		newBlock.next = succ.next
	}

	if prev != 0 {
		predBlock := readFreeBlock(prev)
		if prev+predBlock.size == blockStart {
			predBlock.size += newBlock.size
			predBlock.next = newBlock.next
		}
	}

	a.addAllocated(-int64(blockSize))
	a.incLiveCount(-1)
}

// Reallocate never shrink-splits: if newSize fits in the existing usable
// size, the same pointer is returned. Otherwise it allocates fresh,
// copies, and frees the old region.
func (a *FreeListAllocator) Reallocate(ptr unsafe.Pointer, newSize, alignment uintptr) unsafe.Pointer {
	if ptr == nil {
		return a.Allocate(newSize, alignment)
	}
	if newSize == 0 {
		a.Free(ptr)
		return nil
	}

	oldUsable := a.AllocationSize(ptr)
	if newSize <= oldUsable {
		return ptr
	}

	newPtr := a.Allocate(newSize, alignment)
	if newPtr == nil {
		return nil
	}
	copyBytes(newPtr, ptr, oldUsable)
	a.Free(ptr)
	return newPtr
}

// AllocationSize returns the usable payload size recorded for ptr.
func (a *FreeListAllocator) AllocationSize(ptr unsafe.Pointer) uintptr {
	if ptr == nil || !a.Owns(ptr) {
		return 0
	}
	header := readAllocHeader(uintptr(ptr) - allocHeaderSize)
	return header.size - allocHeaderSize - header.padding
}

// Owns reports whether ptr lies within this allocator's buffer.
func (a *FreeListAllocator) Owns(ptr unsafe.Pointer) bool {
	addr := uintptr(ptr)
	return addr >= a.base && addr < a.base+a.size
}

func (a *FreeListAllocator) TotalAllocated() uintptr  { return a.totalAllocated() }
func (a *FreeListAllocator) PeakUsage() uintptr       { return a.peakUsage() }
func (a *FreeListAllocator) AllocationCount() uintptr { return a.allocationCount() }

func (a *FreeListAllocator) freeStats() (totalFree, largestFree uintptr, blockCount int) {
	for current := a.freeHead; current != 0; current = readFreeBlock(current).next {
		block := readFreeBlock(current)
		totalFree += block.size
		if block.size > largestFree {
			largestFree = block.size
		}
		blockCount++
	}
	return
}

// FragmentationPercentage is 100*(1 - largestFree/totalFree) when any
// free bytes exist, else 0.
func (a *FreeListAllocator) FragmentationPercentage() float64 {
	totalFree, largestFree, _ := a.freeStats()
	if totalFree == 0 {
		return 0
	}
	return (1 - float64(largestFree)/float64(totalFree)) * 100
}

// Reset restores the single initial free block spanning the whole
// capacity and zeroes the allocated-bytes and live-count counters. Peak
// usage is kept.
func (a *FreeListAllocator) Reset() {
	a.resetFreelist()
	a.resetCounters()
}

func (a *FreeListAllocator) Name() string         { return a.name_() }
func (a *FreeListAllocator) SetName(name string)  { a.setName(name) }
func (a *FreeListAllocator) ThreadSafe() bool     { return a.threadSafe_() }
func (a *FreeListAllocator) SetThreadSafe(s bool) { a.setThreadSafe(s) }

// ValidateInternalState walks the freelist checking address-sorted,
// non-overlapping blocks, and that free bytes plus allocated bytes
// exactly account for the buffer's capacity.
//
// The free and allocated counters here both count each block's full
// physical span, including its header/descriptor overhead, which is what
// makes this sum exact: a convention that subtracted descriptor overhead
// from only one side would leave that overhead unaccounted for once any
// allocation is live.
func (a *FreeListAllocator) ValidateInternalState() bool {
	var prev *freeBlockDesc
	var prevAddr uintptr
	totalFree := uintptr(0)

	for current := a.freeHead; current != 0; {
		block := readFreeBlock(current)
		if prev != nil && prevAddr+prev.size > current {
			return false
		}
		totalFree += block.size
		prev = block
		prevAddr = current
		current = block.next
	}

	return totalFree+a.TotalAllocated() == a.size
}

func (a *FreeListAllocator) DetailedStats() string {
	totalFree, largestFree, blockCount := a.freeStats()
	return fmt.Sprintf(
		"FreeListAllocator Stats:\nTotal Size: %d\nAllocated: %d\nFree: %d\nPeak Usage: %d\nAllocation Count: %d\nFree Block Count: %d\nLargest Free Block: %d\nFragmentation: %.2f%%\n",
		a.size, a.TotalAllocated(), totalFree, a.PeakUsage(), a.AllocationCount(), blockCount, largestFree, a.FragmentationPercentage())
}
