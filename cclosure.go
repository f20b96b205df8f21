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

/*
Package cclosure creates C function pointers that carry bound state.

A closure built from (fcn, env) is a handle that can be called like fcn
without its first parameter. When called it invokes fcn with a Context
holding env as the first argument, followed by the caller's arguments.

	h, _ := cclosure.New(fcn, env, false)
	// hand h to C as a plain function pointer
	env, _ = cclosure.Free(h)

Targets with an aggregate return value that the ABI returns through a hidden
pointer need aggRet set. Calling a freed closure traps with SIGILL.
*/
package cclosure

import (
	"context"
	"unsafe"

	"github.com/launix-de/cclosure/bank"
	"github.com/launix-de/cclosure/thunk"
)

var (
	ErrInvalidHandle   = bank.ErrInvalidHandle
	ErrNotLive         = bank.ErrNotLive
	ErrExhausted       = bank.ErrExhausted
	ErrMapFailed       = bank.ErrMapFailed
	ErrUnsupportedArch = bank.ErrUnsupportedArch
	ErrClosed          = bank.ErrClosed
)

type ThreadType = bank.ThreadType

const (
	ThreadNone   = bank.ThreadNone
	ThreadNative = bank.ThreadNative
)

// Threading tells whether this build may be used from several threads at
// once. Builds with the cclosure_nothreads tag report ThreadNone.
const Threading = bank.Threading

// Allocator owns the executable memory of its closures.
type Allocator struct {
	bank *bank.Bank
}

func NewAllocator(settings bank.Settings) (*Allocator, error) {
	b, err := bank.New(settings)
	if err != nil {
		return nil, err
	}
	return &Allocator{bank: b}, nil
}

// Bank exposes the pool behind the allocator for stats and verification.
func (a *Allocator) Bank() *bank.Bank {
	return a.bank
}

// New binds env to fcn. Any pointer values are accepted, nil included.
func (a *Allocator) New(fcn, env unsafe.Pointer, aggRet bool) (unsafe.Pointer, error) {
	return a.NewContext(context.Background(), fcn, env, aggRet)
}

// NewContext is New with cancellation. A canceled ctx leaves the allocator
// unchanged.
func (a *Allocator) NewContext(ctx context.Context, fcn, env unsafe.Pointer, aggRet bool) (unsafe.Pointer, error) {
	ref, err := a.bank.Alloc(ctx, thunk.ClassFor(aggRet), uintptr(fcn), uintptr(env))
	if err != nil {
		return nil, err
	}
	return ref.Handle(), nil
}

// Free invalidates h and returns the env it was bound with. Pointers that
// are no handle give ErrInvalidHandle, handles already freed ErrNotLive.
func (a *Allocator) Free(h unsafe.Pointer) (unsafe.Pointer, error) {
	ref, ok := a.bank.Resolve(h)
	if !ok {
		return nil, ErrInvalidHandle
	}
	_, env, err := a.bank.Unbind(ref)
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(env), nil
}

// FreeAddr is Free for an address read from outside Go, such as user input
// or a C integer. It never turns addr into a pointer unless it names a slot.
func (a *Allocator) FreeAddr(addr uintptr) (unsafe.Pointer, error) {
	ref, ok := a.bank.ResolveAddr(addr)
	if !ok {
		return nil, ErrInvalidHandle
	}
	return a.Free(ref.Handle())
}

// Check reports whether h is a live closure. It accepts any pointer value
// and never reads memory outside the allocator's blocks.
func (a *Allocator) Check(h unsafe.Pointer) bool {
	return a.bank.Contains(h)
}

// CheckAddr is Check for an address that may not be a valid pointer.
func (a *Allocator) CheckAddr(addr uintptr) bool {
	return a.bank.ContainsAddr(addr)
}

// GetFcn returns the target of a live closure, nil otherwise.
func (a *Allocator) GetFcn(h unsafe.Pointer) unsafe.Pointer {
	fcn, _ := a.binding(h)
	return fcn
}

// GetEnv returns the environment of a live closure, nil otherwise.
func (a *Allocator) GetEnv(h unsafe.Pointer) unsafe.Pointer {
	_, env := a.binding(h)
	return env
}

func (a *Allocator) binding(h unsafe.Pointer) (fcn, env unsafe.Pointer) {
	ref, ok := a.bank.Resolve(h)
	if !ok {
		return nil, nil
	}
	f, e, ok := a.bank.Binding(ref)
	if !ok {
		return nil, nil
	}
	return unsafe.Pointer(f), unsafe.Pointer(e)
}

// IsAggregate reports whether a live closure was created with aggRet.
func (a *Allocator) IsAggregate(h unsafe.Pointer) bool {
	ref, ok := a.bank.Resolve(h)
	return ok && ref.Class() == thunk.ClassAggregate
}

// Close unmaps all closures. No handle may be called or passed in afterwards.
func (a *Allocator) Close() error {
	return a.bank.Close()
}
