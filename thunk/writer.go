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

var ErrPatchRange = errors.New("thunk: patch outside emitted code")

// Fixup records a pointer value to be written once the template bytes are in place.
type Fixup struct {
	Patch Patch
	Value uintptr
}

// Writer is a cursor over a closure buffer. Template bytes are copied first,
// recorded fixups are applied by Resolve.
type Writer struct {
	Buf []byte
	Pos int

	Fixups    [4]Fixup
	FixupNext uint8
}

func NewWriter(buf []byte) *Writer {
	return &Writer{Buf: buf}
}

// Emit appends code at the current position.
func (w *Writer) Emit(code []byte) {
	if w.Pos+len(code) > len(w.Buf) {
		panic(ErrShortBuffer)
	}
	copy(w.Buf[w.Pos:], code)
	w.Pos += len(code)
}

// Pad fills the rest of the buffer with the poison pattern so a jump past the
// template traps instead of running leftovers.
func (w *Writer) Pad() {
	Poison(w.Buf[w.Pos:])
	w.Pos = len(w.Buf)
}

// AddPatch records a field to be written by Resolve.
func (w *Writer) AddPatch(p Patch, value uintptr) {
	w.Fixups[w.FixupNext] = Fixup{Patch: p, Value: value}
	w.FixupNext++
}

// Resolve patches all recorded fields after the template was emitted.
func (w *Writer) Resolve() error {
	for i := uint8(0); i < w.FixupNext; i++ {
		f := &w.Fixups[i]
		end := f.Patch.Offset + f.Patch.Size
		if f.Patch.Offset < 0 || end > w.Pos {
			return ErrPatchRange
		}
		dst := w.Buf[f.Patch.Offset:end]
		switch f.Patch.Size {
		case 4:
			binary.LittleEndian.PutUint32(dst, uint32(f.Value))
		case 8:
			binary.LittleEndian.PutUint64(dst, uint64(f.Value))
		default:
			return ErrPatchRange
		}
	}
	w.FixupNext = 0
	return nil
}
