/* This program is free software. It comes without any warranty, to
 * the extent permitted by applicable law. You can redistribute it
 * and/or modify it under the terms of the Do What The Fuck You Want
 * To Public License, Version 2, as published by Sam Hocevar. See
 * http://sam.zoy.org/wtfpl/COPYING for more details. */

package fixedalloc

import "github.com/pkg/errors"

// ErrInvalidBufferSize is returned by the Linear, Stack and FreeList
// constructors when bufferSize is zero, or too small to hold even the
// minimum bookkeeping the strategy requires.
var ErrInvalidBufferSize = errors.New("fixedalloc: invalid buffer size")

// ErrInvalidSizeClass is returned by NewPoolAllocator when a size class
// cannot back a freelist link, or is not a multiple of the pool's
// alignment.
var ErrInvalidSizeClass = errors.New("fixedalloc: invalid pool size class")

// ErrNoSizeClass reports that a request exceeds every declared class,
// not merely that the matching class's freelist happens to be empty.
var ErrNoSizeClass = errors.New("fixedalloc: no size class fits the requested size")
