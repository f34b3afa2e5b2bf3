/* This program is free software. It comes without any warranty, to
 * the extent permitted by applicable law. You can redistribute it
 * and/or modify it under the terms of the Do What The Fuck You Want
 * To Public License, Version 2, as published by Sam Hocevar. See
 * http://sam.zoy.org/wtfpl/COPYING for more details. */

package fixedalloc

// alignUp rounds addr up to the nearest multiple of alignment. alignment
// must already be validated as a power of two by the caller.
func alignUp(addr, alignment uintptr) uintptr {
	return (addr + alignment - 1) &^ (alignment - 1)
}

// alignDown rounds addr down to the nearest multiple of alignment.
func alignDown(addr, alignment uintptr) uintptr {
	return addr &^ (alignment - 1)
}

// paddingFor returns the number of bytes that must be skipped from addr
// to reach the next address aligned to alignment.
func paddingFor(addr, alignment uintptr) uintptr {
	return alignUp(addr, alignment) - addr
}
