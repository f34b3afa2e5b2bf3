/* This program is free software. It comes without any warranty, to
 * the extent permitted by applicable law. You can redistribute it
 * and/or modify it under the terms of the Do What The Fuck You Want
 * To Public License, Version 2, as published by Sam Hocevar. See
 * http://sam.zoy.org/wtfpl/COPYING for more details. */

// Package fixedalloc implements a family of fixed-buffer memory
// allocators: linear (bump), stack (LIFO with markers), pool
// (fixed-size-class freelists) and free-list (first-fit with boundary-tag
// coalescing). Each strategy owns exactly one contiguous []byte obtained
// once at construction and satisfies the Allocator interface.
//
// IMPORTANT: none of the four strategies are goroutine-safe by default.
// SetThreadSafe on Linear, Stack and FreeList is advisory only — it
// toggles nothing but a flag you can read back with ThreadSafe. Pool's
// SetThreadSafe(true) engages a real mutex. Use Synchronized to wrap any
// of the four with real cross-goroutine locking.
package fixedalloc
