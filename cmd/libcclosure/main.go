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

// Command libcclosure builds the C library:
//
//	go build -buildmode=c-shared -o libcclosure.so ./cmd/libcclosure
//
// cclosure.h in this directory declares the exported functions.
package main

// #include <stdlib.h>
import "C"

import (
	"unsafe"

	"github.com/launix-de/cclosure"
)

//export CClosureNew
func CClosureNew(fcn, env unsafe.Pointer, aggRet C.int) unsafe.Pointer {
	h, err := cclosure.New(fcn, env, aggRet != 0)
	if err != nil {
		return nil
	}
	return h
}

//export CClosureFree
func CClosureFree(h unsafe.Pointer) unsafe.Pointer {
	env, _ := cclosure.Free(h)
	return env
}

//export CClosureCheck
func CClosureCheck(h unsafe.Pointer) C.int {
	if cclosure.Check(h) {
		return 1
	}
	return 0
}

//export CClosureGetFcn
func CClosureGetFcn(h unsafe.Pointer) unsafe.Pointer {
	return cclosure.GetFcn(h)
}

//export CClosureGetEnv
func CClosureGetEnv(h unsafe.Pointer) unsafe.Pointer {
	return cclosure.GetEnv(h)
}

//export CClosureThreadType
func CClosureThreadType() C.int {
	return C.int(cclosure.Threading)
}

func main() {}
