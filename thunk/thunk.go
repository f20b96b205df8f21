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
package thunk

import (
	"encoding/binary"
	"errors"
)

/*
thunk templates
---------------

a closure is a short piece of machine code that is entered like the target
function minus its first parameter. it inserts a context value (carrying the
bound environment) as the new first argument and calls the real target.

each (arch, class) pair has exactly one template with two patch sites: the
environment pointer and the target function pointer. everything else in this
package is copying templates and writing those two fields.

*/

// Arch identifies an instruction set a template is written for.
type Arch uint8

const (
	ArchUnknown Arch = iota
	Arch386
	ArchAMD64
)

func (a Arch) String() string {
	switch a {
	case Arch386:
		return "386"
	case ArchAMD64:
		return "amd64"
	}
	return "unknown"
}

// Class is the return class a closure was bound with. ClassPoison marks a
// slot that is not bound to anything.
type Class uint32

const (
	ClassPoison Class = iota
	ClassNormal
	ClassAggregate
)

func (c Class) String() string {
	switch c {
	case ClassPoison:
		return "poison"
	case ClassNormal:
		return "normal"
	case ClassAggregate:
		return "aggregate"
	}
	return "invalid"
}

// Live reports whether c is one of the bound classes.
func (c Class) Live() bool {
	return c == ClassNormal || c == ClassAggregate
}

// ClassFor maps the aggRet flag of the public API to a Class.
func ClassFor(aggRet bool) Class {
	if aggRet {
		return ClassAggregate
	}
	return ClassNormal
}

// Patch is a pointer-sized field inside a template.
type Patch struct {
	Offset int
	Size   int // 4 or 8
}

// Template is one entry of the template table.
type Template struct {
	Arch  Arch
	Class Class
	Code  []byte
	Env   Patch
	Fcn   Patch
	Exit  int // first byte after the call; a running closure returns here
}

var (
	ErrNoTemplate  = errors.New("thunk: no template for arch/class")
	ErrShortBuffer = errors.New("thunk: destination shorter than closure")
)

// ud2 raises SIGILL on every x86 variant
var ud2 = [2]byte{0x0f, 0x0b}

// PoisonByte is the first byte of the poison pattern.
const PoisonByte = 0x0f

/* BITS 64

closure_x86_64:
	sub rsp, 8 * 2
	mov r11, tmpl_env
	push r11
	mov r11, tmpl_fcn
	call r11
	add rsp, 8 * 3
	ret

the context is 32 bytes, so SysV passes it in memory: env at [rsp+8] from the
callee's view, two padding words, then the original return address. the
hidden aggregate return pointer stays in rdi, so both classes share one
template.
*/
var amd64Closure = [34]byte{
	0x48, 0x83, 0xec, 0x10, // sub rsp, 16
	0x49, 0xbb, 0, 0, 0, 0, 0, 0, 0, 0, // mov r11, env
	0x41, 0x53, // push r11
	0x49, 0xbb, 0, 0, 0, 0, 0, 0, 0, 0, // mov r11, fcn
	0x41, 0xff, 0xd3, // call r11
	0x48, 0x83, 0xc4, 0x18, // add rsp, 24
	0xc3, // ret
}

/* BITS 32

closure_x86_norm:
	push tmpl_env
	mov ecx, tmpl_fcn
	call ecx
	add esp, 4
	ret
*/
var i386Normal = [16]byte{
	0x68, 0, 0, 0, 0, // push env
	0xb9, 0, 0, 0, 0, // mov ecx, fcn
	0xff, 0xd1, // call ecx
	0x83, 0xc4, 0x04, // add esp, 4
	0xc3, // ret
}

/* BITS 32

closure_x86_agg:
	pop edx
	pop ecx
	push edx
	push tmpl_env
	push ecx
	mov ecx, tmpl_fcn
	call ecx
	add esp, 4
	ret

the caller pushed the hidden return pointer last; it is lifted over the
context so the target still finds it as its first (hidden) argument. the
target pops it itself (ret 4), which is what the original caller expects.
*/
var i386Aggregate = [20]byte{
	0x5a,       // pop edx
	0x59,       // pop ecx
	0x52,       // push edx
	0x68, 0, 0, 0, 0, // push env
	0x51,       // push ecx
	0xb9, 0, 0, 0, 0, // mov ecx, fcn
	0xff, 0xd1, // call ecx
	0x83, 0xc4, 0x04, // add esp, 4
	0xc3, // ret
}

// closure sizes per arch; every template of that arch must fit
const (
	closureSize386   = 32
	closureSizeAMD64 = 48
)

// compile time: templates fit into their closure size
const (
	_ = uint(closureSizeAMD64 - len(amd64Closure))
	_ = uint(closureSize386 - len(i386Normal))
	_ = uint(closureSize386 - len(i386Aggregate))
)

var templates = []Template{
	{ArchAMD64, ClassNormal, amd64Closure[:], Patch{6, 8}, Patch{18, 8}, 29},
	{ArchAMD64, ClassAggregate, amd64Closure[:], Patch{6, 8}, Patch{18, 8}, 29},
	{Arch386, ClassNormal, i386Normal[:], Patch{1, 4}, Patch{6, 4}, 12},
	{Arch386, ClassAggregate, i386Aggregate[:], Patch{4, 4}, Patch{10, 4}, 16},
}

// Lookup returns the template for arch and class.
func Lookup(arch Arch, class Class) (Template, bool) {
	for _, t := range templates {
		if t.Arch == arch && t.Class == class {
			return t, true
		}
	}
	return Template{}, false
}

// SizeOf returns the closure size reserved per slot for arch.
func SizeOf(arch Arch) int {
	switch arch {
	case ArchAMD64:
		return closureSizeAMD64
	case Arch386:
		return closureSize386
	}
	return 0
}

// Poison overwrites dst with the trapping pattern.
func Poison(dst []byte) {
	for i := 0; i+1 < len(dst); i += 2 {
		dst[i] = ud2[0]
		dst[i+1] = ud2[1]
	}
	if len(dst)%2 == 1 {
		dst[len(dst)-1] = ud2[0]
	}
}

// Retire poisons the entry region of a closure bound with class. The exit
// region is left alone so a call that is still running inside the closure
// (e.g. the target freed its own closure) can return through it.
// Entering the closure again traps.
func Retire(code []byte, arch Arch, class Class) {
	t, ok := Lookup(arch, class)
	if !ok || t.Exit > len(code) {
		Poison(code)
		return
	}
	Poison(code[:t.Exit])
}

// IsPoison reports whether code starts with the poison pattern.
func IsPoison(code []byte) bool {
	return len(code) >= 2 && code[0] == ud2[0] && code[1] == ud2[1]
}

// Emit writes the (arch, class) template into dst with fcn and env patched in.
// Bytes behind the template are poisoned.
func Emit(dst []byte, arch Arch, class Class, fcn, env uintptr) error {
	t, ok := Lookup(arch, class)
	if !ok {
		return ErrNoTemplate
	}
	if len(dst) < SizeOf(arch) {
		return ErrShortBuffer
	}
	w := NewWriter(dst[:SizeOf(arch)])
	w.AddPatch(t.Env, env)
	w.AddPatch(t.Fcn, fcn)
	w.Emit(t.Code)
	w.Pad()
	return w.Resolve()
}

// Decode reads the patched fields of a bound closure.
func Decode(code []byte, arch Arch, class Class) (fcn, env uintptr) {
	t, ok := Lookup(arch, class)
	if !ok {
		return 0, 0
	}
	return readPatch(code, t.Fcn), readPatch(code, t.Env)
}

// Classify infers the class from the leading byte. On amd64 both live classes
// share one template, so the answer is always ClassNormal there.
func Classify(code []byte, arch Arch) Class {
	if len(code) == 0 || IsPoison(code) {
		return ClassPoison
	}
	switch arch {
	case Arch386:
		switch code[0] {
		case i386Aggregate[0]:
			return ClassAggregate
		case i386Normal[0]:
			return ClassNormal
		}
	case ArchAMD64:
		if code[0] == amd64Closure[0] {
			return ClassNormal
		}
	}
	return ClassPoison
}

func readPatch(code []byte, p Patch) uintptr {
	if p.Offset+p.Size > len(code) {
		return 0
	}
	switch p.Size {
	case 4:
		return uintptr(binary.LittleEndian.Uint32(code[p.Offset:]))
	case 8:
		return uintptr(binary.LittleEndian.Uint64(code[p.Offset:]))
	}
	return 0
}
