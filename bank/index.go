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
	"sort"
	"unsafe"

	"github.com/launix-de/NonLockingReadMap"
)

// extent is the index entry of one block: [base, end) in the address space.
type extent struct {
	base, end uintptr
	block     *Block
}

func (e extent) GetKey() uintptr {
	return e.base
}

func (e extent) ComputeSize() uint {
	return uint(unsafe.Sizeof(e))
}

// blockIndex answers "which block holds this address" without locks. Writes
// only happen on growth and close.
type blockIndex struct {
	m NonLockingReadMap.NonLockingReadMap[extent, uintptr]
}

func newBlockIndex() blockIndex {
	return blockIndex{m: NonLockingReadMap.New[extent, uintptr]()}
}

func (x *blockIndex) add(b *Block) {
	x.m.Set(&extent{base: b.base(), end: b.end(), block: b})
}

func (x *blockIndex) remove(b *Block) {
	x.m.Remove(b.base())
}

// lookup returns the block whose slots cover addr.
func (x *blockIndex) lookup(addr uintptr) (*Block, bool) {
	items := x.m.GetAll()
	i := sort.Search(len(items), func(i int) bool {
		return items[i].base > addr
	})
	if i == 0 {
		return nil, false
	}
	e := items[i-1]
	if addr >= e.end {
		return nil, false
	}
	return e.block, true
}

func (x *blockIndex) size() uint {
	return x.m.ComputeSize()
}
