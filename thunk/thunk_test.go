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
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateTable(t *testing.T) {
	for _, arch := range []Arch{Arch386, ArchAMD64} {
		for _, class := range []Class{ClassNormal, ClassAggregate} {
			tmpl, ok := Lookup(arch, class)
			require.True(t, ok, "%s/%s", arch, class)
			assert.LessOrEqual(t, len(tmpl.Code), SizeOf(arch))
			// both patch sites lie inside the template and do not overlap
			for _, p := range []Patch{tmpl.Env, tmpl.Fcn} {
				assert.LessOrEqual(t, p.Offset+p.Size, len(tmpl.Code))
			}
			assert.True(t, tmpl.Env.Offset+tmpl.Env.Size <= tmpl.Fcn.Offset || tmpl.Fcn.Offset+tmpl.Fcn.Size <= tmpl.Env.Offset)
			// the template ships with zeroed immediates
			for i := 0; i < tmpl.Env.Size; i++ {
				assert.Zero(t, tmpl.Code[tmpl.Env.Offset+i])
				assert.Zero(t, tmpl.Code[tmpl.Fcn.Offset+i])
			}
			assert.NotEqual(t, byte(PoisonByte), tmpl.Code[0])
		}
	}
	_, ok := Lookup(ArchUnknown, ClassNormal)
	assert.False(t, ok)
	_, ok = Lookup(ArchAMD64, ClassPoison)
	assert.False(t, ok)
}

func TestLeadingBytesDistinct(t *testing.T) {
	norm, _ := Lookup(Arch386, ClassNormal)
	agg, _ := Lookup(Arch386, ClassAggregate)
	assert.NotEqual(t, norm.Code[0], agg.Code[0])
	assert.NotEqual(t, norm.Code[0], byte(PoisonByte))
	assert.NotEqual(t, agg.Code[0], byte(PoisonByte))
}

func TestEmitDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		arch     Arch
		fcn, env uintptr
	}{
		{ArchAMD64, 0, 0},
		{ArchAMD64, 0x7f00dead, 0x1234},
		{Arch386, 0x08048000, 0xbffff000},
		{Arch386, 0, 0xffffffff},
	}
	for _, c := range cases {
		for _, class := range []Class{ClassNormal, ClassAggregate} {
			buf := make([]byte, SizeOf(c.arch))
			require.NoError(t, Emit(buf, c.arch, class, c.fcn, c.env))
			fcn, env := Decode(buf, c.arch, class)
			assert.Equal(t, c.fcn, fcn)
			assert.Equal(t, c.env, env)
			assert.False(t, IsPoison(buf))
			// the tail behind the template traps
			tmpl, _ := Lookup(c.arch, class)
			if len(tmpl.Code) < len(buf) {
				assert.Equal(t, byte(PoisonByte), buf[len(tmpl.Code)])
			}
		}
	}
}

func TestEmitExactBytes(t *testing.T) {
	buf := make([]byte, SizeOf(Arch386))
	require.NoError(t, Emit(buf, Arch386, ClassNormal, 0x44332211, 0x88776655))
	assert.Equal(t, []byte{
		0x68, 0x55, 0x66, 0x77, 0x88,
		0xb9, 0x11, 0x22, 0x33, 0x44,
		0xff, 0xd1, 0x83, 0xc4, 0x04, 0xc3,
	}, buf[:16])

	if unsafe.Sizeof(uintptr(0)) < 8 {
		return
	}
	fcn, env := uint64(0x0102030405060708), uint64(0x1112131415161718)
	buf = make([]byte, SizeOf(ArchAMD64))
	require.NoError(t, Emit(buf, ArchAMD64, ClassNormal, uintptr(fcn), uintptr(env)))
	assert.Equal(t, []byte{0x49, 0xbb, 0x18, 0x17, 0x16, 0x15, 0x14, 0x13, 0x12, 0x11}, buf[4:14])
	assert.Equal(t, []byte{0x49, 0xbb, 0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}, buf[16:26])
	assert.Equal(t, byte(0xc3), buf[33])
}

func TestEmitErrors(t *testing.T) {
	assert.ErrorIs(t, Emit(make([]byte, 64), ArchUnknown, ClassNormal, 1, 2), ErrNoTemplate)
	assert.ErrorIs(t, Emit(make([]byte, 64), ArchAMD64, ClassPoison, 1, 2), ErrNoTemplate)
	assert.ErrorIs(t, Emit(make([]byte, 10), ArchAMD64, ClassNormal, 1, 2), ErrShortBuffer)
}

func TestPoisonAndClassify(t *testing.T) {
	buf := make([]byte, SizeOf(Arch386))
	Poison(buf)
	assert.True(t, IsPoison(buf))
	for i := 0; i < len(buf); i += 2 {
		assert.Equal(t, []byte{0x0f, 0x0b}, buf[i:i+2])
	}
	assert.Equal(t, ClassPoison, Classify(buf, Arch386))

	require.NoError(t, Emit(buf, Arch386, ClassAggregate, 1, 2))
	assert.Equal(t, ClassAggregate, Classify(buf, Arch386))
	require.NoError(t, Emit(buf, Arch386, ClassNormal, 1, 2))
	assert.Equal(t, ClassNormal, Classify(buf, Arch386))

	buf = make([]byte, SizeOf(ArchAMD64))
	require.NoError(t, Emit(buf, ArchAMD64, ClassAggregate, 1, 2))
	assert.Equal(t, ClassNormal, Classify(buf, ArchAMD64)) // shared template
	assert.Equal(t, ClassPoison, Classify(nil, ArchAMD64))

	odd := make([]byte, 5)
	Poison(odd)
	assert.Equal(t, byte(0x0f), odd[4])
}

func TestRetireKeepsExit(t *testing.T) {
	for _, arch := range []Arch{Arch386, ArchAMD64} {
		for _, class := range []Class{ClassNormal, ClassAggregate} {
			tmpl, _ := Lookup(arch, class)
			buf := make([]byte, SizeOf(arch))
			require.NoError(t, Emit(buf, arch, class, 1, 2))
			Retire(buf, arch, class)
			assert.True(t, IsPoison(buf))
			assert.Equal(t, ClassPoison, Classify(buf, arch))
			assert.Equal(t, tmpl.Code[tmpl.Exit:], buf[tmpl.Exit:len(tmpl.Code)])
			// the call instruction ends right at the exit offset
			assert.Less(t, tmpl.Fcn.Offset, tmpl.Exit)
		}
	}
	buf := make([]byte, SizeOf(ArchAMD64))
	require.NoError(t, Emit(buf, ArchAMD64, ClassNormal, 1, 2))
	Retire(buf, ArchAMD64, ClassPoison)
	assert.Equal(t, byte(PoisonByte), buf[len(buf)-2])
}

func TestWriterPatchRange(t *testing.T) {
	w := NewWriter(make([]byte, 8))
	w.Emit([]byte{1, 2, 3, 4})
	w.AddPatch(Patch{2, 4}, 0xaabbccdd)
	assert.ErrorIs(t, w.Resolve(), ErrPatchRange)

	w = NewWriter(make([]byte, 8))
	w.Emit([]byte{1, 2, 3, 4, 5, 6})
	w.AddPatch(Patch{2, 4}, 0xaabbccdd)
	require.NoError(t, w.Resolve())
	assert.Equal(t, []byte{1, 2, 0xdd, 0xcc, 0xbb, 0xaa}, w.Buf[:6])
	w.Pad()
	assert.Equal(t, []byte{0x0f, 0x0b}, w.Buf[6:])
	assert.Panics(t, func() { w.Emit([]byte{1}) })
}

func TestClassFor(t *testing.T) {
	assert.Equal(t, ClassAggregate, ClassFor(true))
	assert.Equal(t, ClassNormal, ClassFor(false))
	assert.True(t, ClassNormal.Live())
	assert.False(t, ClassPoison.Live())
	assert.Equal(t, "aggregate", ClassAggregate.String())
	assert.Equal(t, "amd64", ArchAMD64.String())
}

func TestNativeClosureSize(t *testing.T) {
	if Native == ArchUnknown {
		t.Skip("no templates for this architecture")
	}
	assert.Equal(t, SizeOf(Native), ClosureSize)
	for _, class := range []Class{ClassNormal, ClassAggregate} {
		_, ok := Lookup(Native, class)
		assert.True(t, ok)
	}
}
