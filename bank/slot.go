/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package bank

import (
	"sync/atomic"
	"unsafe"

	"github.com/launix-de/cclosure/thunk"
)

// slot is one fixed-size record inside a block's mapping. It lives in memory
// the Go collector never scans, so it must not hold Go pointers.
type slot struct {
	code     [thunk.ClosureSize]byte // the handle is &code[0]
	class    atomic.Uint32           // thunk.Class; poison while free
	nextFree int32                   // free list link, -1 terminates
	blockIdx uint32                  // set once at block init
	_        uint32
}

const slotSize = unsafe.Sizeof(slot{})

// Ref names one slot. The zero Ref names nothing.
type Ref struct {
	b   *Block
	idx int32
}

func (r Ref) slot() *slot {
	return r.b.slotAt(r.idx)
}

// IsZero reports whether r names no slot.
func (r Ref) IsZero() bool {
	return r.b == nil
}

// Handle returns the callable address of the slot.
func (r Ref) Handle() unsafe.Pointer {
	return unsafe.Pointer(&r.slot().code[0])
}

// Block returns the index of the owning block.
func (r Ref) Block() uint32 {
	return r.slot().blockIdx
}

// Index returns the slot index within its block.
func (r Ref) Index() int32 {
	return r.idx
}

// Class returns the tag currently stored in the slot.
func (r Ref) Class() thunk.Class {
	return thunk.Class(r.slot().class.Load())
}
