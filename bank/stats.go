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

	units "github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/launix-de/cclosure/thunk"
)

// Stats is a point-in-time summary of a bank.
type Stats struct {
	ID     uuid.UUID
	Arch   thunk.Arch
	Blocks int
	Slots  int
	Free   int
	Live   int64
	Mapped int64 // bytes
	Index  uint  // bytes held by the address index
}

// Pending counts slots that are neither free nor bound, i.e. between
// Acquire and Bind or inside Unbind.
func (s Stats) Pending() int64 {
	p := int64(s.Slots-s.Free) - s.Live
	if p < 0 {
		return 0
	}
	return p
}

func (s Stats) String() string {
	return fmt.Sprintf("bank %s (%s): %d blocks, %d slots (%d free, %d live, %d pending), %s mapped, index %s",
		s.ID, s.Arch, s.Blocks, s.Slots, s.Free, s.Live, s.Pending(),
		units.BytesSize(float64(s.Mapped)), units.BytesSize(float64(s.Index)))
}

func (b *Bank) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := Stats{ID: b.ID, Arch: b.Arch(), Blocks: len(b.blocks), Mapped: b.mapped, Live: b.live.Load(), Index: b.index.size()}
	for _, blk := range b.blocks {
		st.Slots += len(blk.slots)
		st.Free += blk.freeCount()
	}
	return st
}
