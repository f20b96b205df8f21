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

import "unsafe"

// Context is the first parameter of every closure target. At 32 bytes it
// is passed in memory, leaving all argument registers to the caller's
// arguments.
type Context struct {
	Env unsafe.Pointer
	_   [2]uintptr
	Ret uintptr // return address of the closure's caller
}

const (
	_ = uint(unsafe.Sizeof(Context{}) - 32)
	_ = uint(32 - unsafe.Sizeof(Context{}))
)
