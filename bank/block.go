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
	"fmt"
	"unsafe"

	"github.com/launix-de/cclosure/thunk"
)

/*
blocks
------

a block is one executable mapping carved into equally sized slots. free slots
are chained through slot.nextFree, so the free list itself lives in the
mapping and costs no extra memory.

the slot count of a block never changes; block idx has
pageSize << min(idx, capExponent) bytes.

*/

type Block struct {
	mu        rwLock
	idx       uint32
	mem       []byte
	slots     []slot
	firstFree int32
	free      int
}

// blockBytes is the mapping size of block idx.
func blockBytes(page int, idx uint32, capExponent uint) int {
	shift := uint(idx)
	if shift > capExponent {
		shift = capExponent
	}
	return page << shift
}

func newBlock(idx uint32, size int) (*Block, error) {
	n := size / int(slotSize)
	if n == 0 {
		return nil, fmt.Errorf("%w: %d bytes hold no slot", ErrMapFailed, size)
	}
	mem, err := mapExec(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMapFailed, err)
	}
	b := &Block{idx: idx, mem: mem}
	b.slots = unsafe.Slice((*slot)(unsafe.Pointer(&mem[0])), n)
	for i := range b.slots {
		s := &b.slots[i]
		thunk.Poison(s.code[:])
		s.class.Store(uint32(thunk.ClassPoison))
		s.blockIdx = idx
		s.nextFree = int32(i + 1)
	}
	b.slots[n-1].nextFree = -1
	b.firstFree = 0
	b.free = n
	return b, nil
}

func (b *Block) base() uintptr {
	return uintptr(unsafe.Pointer(&b.mem[0]))
}

func (b *Block) end() uintptr {
	return b.base() + uintptr(len(b.slots))*slotSize
}

// tryPop takes a free slot without waiting for the block lock.
func (b *Block) tryPop() (int32, bool) {
	if !b.mu.TryLock() {
		return -1, false
	}
	defer b.mu.Unlock()
	return b.popLocked()
}

func (b *Block) pop() (int32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.popLocked()
}

func (b *Block) popLocked() (int32, bool) {
	i := b.firstFree
	if i < 0 {
		return -1, false
	}
	s := &b.slots[i]
	b.firstFree = s.nextFree
	s.nextFree = -1
	b.free--
	return i, true
}

func (b *Block) push(i int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots[i].nextFree = b.firstFree
	b.firstFree = i
	b.free++
}

func (b *Block) contains(addr uintptr) bool {
	return addr >= b.base() && addr < b.end()
}

// indexOf maps a handle to its slot index. Interior and misaligned
// addresses are rejected.
func (b *Block) indexOf(addr uintptr) (int32, bool) {
	if !b.contains(addr) {
		return -1, false
	}
	off := addr - b.base()
	if off%slotSize != 0 {
		return -1, false
	}
	return int32(off / slotSize), true
}

func (b *Block) slotAt(i int32) *slot {
	return &b.slots[i]
}

func (b *Block) freeCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.free
}

func (b *Block) unmap() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	mem := b.mem
	b.mem, b.slots, b.firstFree, b.free = nil, nil, -1, 0
	return unmapExec(mem)
}
