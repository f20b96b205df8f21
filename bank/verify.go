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
	"runtime/debug"

	"github.com/jtolds/gls"
	"github.com/launix-de/NonLockingReadMap"

	"github.com/launix-de/cclosure/thunk"
)

// Report is the outcome of Verify.
type Report struct {
	Blocks  int
	Slots   int
	Free    int
	Live    int
	Pending int
	Issues  []string
}

type blockReport struct {
	free, live, pending int
	issues              []string
}

type verifyPanic struct {
	r     any
	stack string
}

func (p verifyPanic) Error() string {
	return fmt.Sprint("panic during verify: ", p.r, "\n", p.stack)
}

// Verify walks every free list and every slot, one goroutine per block. It
// returns ErrCorrupt if a free list is cyclic, leaves its block, links a slot
// of another block or a slot that is not poisoned, or if its length
// disagrees with the free counter.
func (b *Bank) Verify() (Report, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return Report{}, ErrClosed
	}
	var rep Report
	visited := NonLockingReadMap.NewBitMap()
	type result struct {
		br  blockReport
		err error
	}
	done := make(chan result, len(b.blocks))
	for _, blk := range b.blocks {
		rep.Slots += len(blk.slots)
	}
	// size the bitmap up front; the workers then only flip bits
	if rep.Slots > 0 {
		visited.Set(uint(rep.Slots-1), true)
		visited.Set(uint(rep.Slots-1), false)
	}
	first := uint32(0)
	for _, blk := range b.blocks {
		gls.Go(func(blk *Block, first uint32) func() {
			return func() {
				defer func() {
					if r := recover(); r != nil {
						done <- result{err: verifyPanic{r, string(debug.Stack())}}
					}
				}()
				done <- result{br: blk.verify(b.arch, &visited, first)}
			}
		}(blk, first))
		first += uint32(len(blk.slots))
	}
	rep.Blocks = len(b.blocks)
	var err error
	for range b.blocks {
		r := <-done
		if r.err != nil {
			err = r.err
			continue
		}
		rep.Free += r.br.free
		rep.Live += r.br.live
		rep.Pending += r.br.pending
		rep.Issues = append(rep.Issues, r.br.issues...)
	}
	if err != nil {
		return rep, err
	}
	if len(rep.Issues) > 0 {
		for _, is := range rep.Issues {
			b.log.Error("cclosure bank %s: verify: %s", b.ID, is)
		}
		return rep, fmt.Errorf("%w: %d issues", ErrCorrupt, len(rep.Issues))
	}
	return rep, nil
}

// verify checks one block. first is the global number of its slot 0 in
// the shared visited map.
func (blk *Block) verify(arch thunk.Arch, visited *NonLockingReadMap.NonBlockingBitMap, first uint32) (br blockReport) {
	blk.mu.RLock()
	defer blk.mu.RUnlock()
	issue := func(format string, a ...any) {
		br.issues = append(br.issues, fmt.Sprintf("block %d: ", blk.idx)+fmt.Sprintf(format, a...))
	}
	n := int32(len(blk.slots))
	for i := blk.firstFree; i != -1; i = blk.slots[i].nextFree {
		if i < 0 || i >= n {
			issue("free list leaves block at %d", i)
			break
		}
		if visited.Get(uint(first+uint32(i))) {
			issue("free list cycles at slot %d", i)
			break
		}
		visited.Set(uint(first+uint32(i)), true)
		s := &blk.slots[i]
		if s.blockIdx != blk.idx {
			issue("slot %d is tagged with block %d", i, s.blockIdx)
		}
		if cls := thunk.Class(s.class.Load()); cls != thunk.ClassPoison {
			issue("free slot %d is %s", i, cls)
		}
		if !thunk.IsPoison(s.code[:]) {
			issue("free slot %d is not poisoned", i)
		}
		br.free++
	}
	if br.free != blk.free {
		issue("free counter %d, list holds %d", blk.free, br.free)
	}
	for i := range blk.slots {
		if visited.Get(uint(first+uint32(i))) {
			continue
		}
		s := &blk.slots[i]
		cls := thunk.Class(s.class.Load())
		switch {
		case !cls.Live():
			br.pending++
		case thunk.Classify(s.code[:], arch) == thunk.ClassPoison:
			// a concurrent Unbind may have won after the tag load
			if thunk.Class(s.class.Load()).Live() {
				issue("live slot %d holds poison", i)
			}
			br.pending++
		default:
			br.live++
		}
	}
	return br
}
