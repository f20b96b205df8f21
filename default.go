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
package cclosure

import (
	"sync"
	"unsafe"

	"github.com/launix-de/cclosure/bank"
)

var (
	defaultOnce  sync.Once
	defaultAlloc *Allocator
	defaultErr   error
)

// Default returns the process wide allocator. It is created on first use
// from the CCLOSURE_* environment variables and lives until the process
// ends. Its blocks are never unmapped, so handles stay callable while other
// goroutines or signal handlers shut down.
func Default() (*Allocator, error) {
	defaultOnce.Do(func() {
		s, err := bank.SettingsFromEnv()
		if err != nil {
			defaultErr = err
			return
		}
		defaultAlloc, defaultErr = NewAllocator(s)
	})
	return defaultAlloc, defaultErr
}

// New binds env to fcn in the default allocator.
func New(fcn, env unsafe.Pointer, aggRet bool) (unsafe.Pointer, error) {
	a, err := Default()
	if err != nil {
		return nil, err
	}
	return a.New(fcn, env, aggRet)
}

func Free(h unsafe.Pointer) (unsafe.Pointer, error) {
	a, err := Default()
	if err != nil {
		return nil, err
	}
	return a.Free(h)
}

func Check(h unsafe.Pointer) bool {
	a, err := Default()
	return err == nil && a.Check(h)
}

func GetFcn(h unsafe.Pointer) unsafe.Pointer {
	a, err := Default()
	if err != nil {
		return nil
	}
	return a.GetFcn(h)
}

func GetEnv(h unsafe.Pointer) unsafe.Pointer {
	a, err := Default()
	if err != nil {
		return nil
	}
	return a.GetEnv(h)
}
