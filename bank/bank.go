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
	"context"
	"sync/atomic"
	"unsafe"

	units "github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/launix-de/go-mysqlstack/xlog"

	"github.com/launix-de/cclosure/thunk"
)

/*
bank
----

a bank is a growable list of blocks. allocation first probes every block with
TryLock under the bank read lock, so concurrent allocators spread over blocks
instead of queueing on one. only when every probe fails the bank write lock is
taken; with it held no one else can touch a block, so a blocking re-scan is
exact and growth happens at most once per miss.

lock order: bank before block. no lock is held while a closure runs.

*/

type Bank struct {
	ID uuid.UUID

	mu       rwLock
	arch     thunk.Arch
	blocks   []*Block
	index    blockIndex
	settings Settings
	page     int
	mapped   int64
	closed   bool
	log      *xlog.Log
	trace    *Tracefile

	live atomic.Int64
}

// testHookGrow runs inside the grow critical section, before the new block is
// mapped.
var testHookGrow func()

// New creates a bank for the running architecture and maps its first block.
func New(settings Settings) (*Bank, error) {
	if thunk.Native == thunk.ArchUnknown {
		return nil, ErrUnsupportedArch
	}
	b := &Bank{
		ID:       uuid.New(),
		arch:     thunk.Native,
		index:    newBlockIndex(),
		settings: settings,
		page:     pageSize(),
		log:      settings.logger(),
	}
	if settings.Trace != "" {
		t, err := OpenTrace(settings.Trace)
		if err != nil {
			return nil, err
		}
		b.trace = t
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.addBlock(); err != nil {
		if b.trace != nil {
			b.trace.Close()
		}
		return nil, err
	}
	return b, nil
}

// Arch is the instruction set the bank emits.
func (b *Bank) Arch() thunk.Arch {
	return b.arch
}

// addBlock maps the next block. The bank write lock must be held. The block
// becomes visible only once it is fully initialized.
func (b *Bank) addBlock() (*Block, error) {
	idx := uint32(len(b.blocks))
	size := blockBytes(b.page, idx, b.settings.CapExponent)
	if b.settings.MaxBytes > 0 && b.mapped+int64(size) > b.settings.MaxBytes {
		b.log.Warning("cclosure bank %s: budget of %s exhausted", b.ID, units.BytesSize(float64(b.settings.MaxBytes)))
		b.event("exhausted", "i", nil)
		return nil, ErrExhausted
	}
	var blk *Block
	var err error
	b.span("map", func() { blk, err = newBlock(idx, size) })
	if err != nil {
		b.log.Error("cclosure bank %s: %v", b.ID, err)
		return nil, err
	}
	b.blocks = append(b.blocks, blk)
	b.index.add(blk)
	b.mapped += int64(size)
	b.log.Info("cclosure bank %s: block %d mapped, %s with %d slots", b.ID, idx, units.BytesSize(float64(size)), len(blk.slots))
	b.event("grow", "i", map[string]any{"block": idx, "bytes": size, "slots": len(blk.slots)})
	return blk, nil
}

// span records f as a begin/end pair when tracing.
func (b *Bank) span(name string, f func()) {
	if b.trace == nil {
		f()
		return
	}
	b.trace.Duration(name, "bank", b.ID.String(), f)
}

func (b *Bank) event(name, typ string, args map[string]any) {
	if b.trace != nil {
		b.trace.EventFull(name, "bank", typ, b.trace.Now(), b.ID.String(), args)
	}
}

// Acquire takes a free slot, growing the bank if every block is full. The
// slot stays poisoned until Bind.
func (b *Bank) Acquire(ctx context.Context) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}
	ref, err := b.scan()
	if err != nil || !ref.IsZero() {
		return ref, err
	}
	return b.grow(ctx)
}

func (b *Bank) scan() (Ref, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return Ref{}, ErrClosed
	}
	for _, blk := range b.blocks {
		if i, ok := blk.tryPop(); ok {
			return Ref{blk, i}, nil
		}
	}
	return Ref{}, nil
}

func (b *Bank) grow(ctx context.Context) (Ref, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Ref{}, ErrClosed
	}
	// slots freed while we waited for the write lock
	for _, blk := range b.blocks {
		if i, ok := blk.pop(); ok {
			return Ref{blk, i}, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}
	if testHookGrow != nil {
		testHookGrow()
	}
	blk, err := b.addBlock()
	if err != nil {
		return Ref{}, err
	}
	i, _ := blk.pop()
	return Ref{blk, i}, nil
}

// Bind writes the closure for class into an acquired slot and publishes it.
func (b *Bank) Bind(ref Ref, class thunk.Class, fcn, env uintptr) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	s := ref.slot()
	if err := thunk.Emit(s.code[:], b.arch, class, fcn, env); err != nil {
		return err
	}
	s.class.Store(uint32(class))
	b.live.Add(1)
	return nil
}

// Alloc is Acquire followed by Bind. A slot whose Bind did not complete
// (error, panic, Goexit) goes back to its block.
func (b *Bank) Alloc(ctx context.Context, class thunk.Class, fcn, env uintptr) (ref Ref, err error) {
	if !class.Live() {
		return Ref{}, thunk.ErrNoTemplate
	}
	ref, err = b.Acquire(ctx)
	if err != nil {
		return Ref{}, err
	}
	bound := false
	defer func() {
		if !bound {
			b.Release(ref)
		}
	}()
	if err = b.Bind(ref, class, fcn, env); err != nil {
		return Ref{}, err
	}
	bound = true
	return ref, nil
}

// Unbind invalidates a live closure and recycles its slot. It returns the
// binding the closure carried. Only one of several concurrent Unbinds of the
// same slot succeeds; the rest get ErrNotLive.
func (b *Bank) Unbind(ref Ref) (fcn, env uintptr, err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, 0, ErrClosed
	}
	s := ref.slot()
	cls := thunk.Class(s.class.Load())
	if !cls.Live() {
		return 0, 0, ErrNotLive
	}
	fcn, env = thunk.Decode(s.code[:], b.arch, cls)
	if !s.class.CompareAndSwap(uint32(cls), uint32(thunk.ClassPoison)) {
		return 0, 0, ErrNotLive
	}
	b.live.Add(-1)
	// the exit stays intact: the caller may be running inside this closure
	thunk.Retire(s.code[:], b.arch, cls)
	ref.b.push(ref.idx)
	return fcn, env, nil
}

// Release returns an acquired slot that was never bound.
func (b *Bank) Release(ref Ref) {
	if ref.IsZero() {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	s := ref.slot()
	if thunk.Class(s.class.Swap(uint32(thunk.ClassPoison))).Live() {
		b.live.Add(-1)
	}
	thunk.Poison(s.code[:])
	ref.b.push(ref.idx)
}

// Resolve maps a handle back to its slot without taking any lock. Addresses
// outside the bank, inside a slot or between slots are rejected.
func (b *Bank) Resolve(h unsafe.Pointer) (Ref, bool) {
	return b.ResolveAddr(uintptr(h))
}

// ResolveAddr is Resolve for an address that may not be a valid pointer.
func (b *Bank) ResolveAddr(addr uintptr) (Ref, bool) {
	blk, ok := b.index.lookup(addr)
	if !ok {
		return Ref{}, false
	}
	i, ok := blk.indexOf(addr)
	if !ok {
		return Ref{}, false
	}
	return Ref{blk, i}, true
}

// Contains reports whether h is a live closure of this bank. The answer is a
// snapshot; a concurrent Unbind may invalidate it right after.
func (b *Bank) Contains(h unsafe.Pointer) bool {
	return b.ContainsAddr(uintptr(h))
}

// ContainsAddr is Contains for a raw address.
func (b *Bank) ContainsAddr(addr uintptr) bool {
	ref, ok := b.ResolveAddr(addr)
	return ok && ref.Class().Live()
}

// Binding decodes a live closure.
func (b *Bank) Binding(ref Ref) (fcn, env uintptr, ok bool) {
	cls := ref.Class()
	if !cls.Live() {
		return 0, 0, false
	}
	fcn, env = thunk.Decode(ref.slot().code[:], b.arch, cls)
	return fcn, env, true
}

// Live is the number of bound closures.
func (b *Bank) Live() int64 {
	return b.live.Load()
}

// Settings returns a copy of the current settings.
func (b *Bank) Settings() Settings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}

// Change applies one setting to a running bank. Growth limits affect future
// blocks only; existing blocks are never remapped.
func (b *Bank) Change(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.settings
	if err := s.Change(key, value); err != nil {
		return err
	}
	switch key {
	case "LogLevel":
		b.log = s.logger()
	case "Trace":
		if s.Trace != b.settings.Trace {
			// the old trace keeps running if the new file cannot be created
			var t *Tracefile
			if s.Trace != "" {
				var err error
				if t, err = OpenTrace(s.Trace); err != nil {
					return err
				}
			}
			if b.trace != nil {
				b.trace.Close()
			}
			b.trace = t
		}
	}
	b.settings = s
	b.log.Debug("cclosure bank %s: %s = %s", b.ID, key, value)
	return nil
}

// Close unmaps every block. Handles of the bank must not be used afterwards,
// and Close must not run concurrently with Resolve or Contains.
func (b *Bank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if n := b.live.Load(); n > 0 {
		b.log.Warning("cclosure bank %s: closing with %d live closures", b.ID, n)
	}
	var first error
	for _, blk := range b.blocks {
		b.index.remove(blk)
		if err := blk.unmap(); err != nil && first == nil {
			first = err
		}
	}
	b.log.Info("cclosure bank %s: closed, %s unmapped", b.ID, units.BytesSize(float64(b.mapped)))
	b.event("close", "i", map[string]any{"blocks": len(b.blocks)})
	b.blocks = nil
	b.mapped = 0
	if b.trace != nil {
		if err := b.trace.Close(); err != nil && first == nil {
			first = err
		}
		b.trace = nil
	}
	return first
}
