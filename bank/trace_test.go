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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/launix-de/cclosure/thunk"
)

func readTrace(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var r io.Reader = f
	switch filepath.Ext(path) {
	case ".xz":
		r, err = xz.NewReader(f)
		require.NoError(t, err)
	case ".lz4":
		r = lz4.NewReader(f)
	}
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	var events []map[string]any
	require.NoError(t, json.Unmarshal(raw, &events), string(raw))
	return events
}

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func TestTracefileEvents(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTrace(nopCloser{&buf})
	tr.Duration("work", "test", "p1", func() {
		tr.Event("tick", "test", "i", "p1")
	})
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	tr.Event("late", "test", "i", "p1") // dropped after close

	var events []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &events))
	require.Len(t, events, 3)
	assert.Equal(t, "B", events[0]["ph"])
	assert.Equal(t, "tick", events[1]["name"])
	assert.Equal(t, "g", events[1]["s"])
	assert.Equal(t, "E", events[2]["ph"])
}

func TestBankTrace(t *testing.T) {
	if thunk.Native == thunk.ArchUnknown {
		t.Skip("no closure templates for this architecture")
	}
	for _, name := range []string{"trace.json", "trace.json.xz", "trace.json.lz4"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			s := quiet()
			s.Trace = path
			b, err := New(s)
			require.NoError(t, err)
			require.NoError(t, b.Close())

			events := readTrace(t, path)
			require.Len(t, events, 4)
			assert.Equal(t, "map", events[0]["name"])
			assert.Equal(t, "B", events[0]["ph"])
			assert.Equal(t, "map", events[1]["name"])
			assert.Equal(t, "E", events[1]["ph"])
			assert.Equal(t, "grow", events[2]["name"])
			assert.Equal(t, b.ID.String(), events[2]["pid"])
			args := events[2]["args"].(map[string]any)
			assert.EqualValues(t, pageSize(), args["bytes"])
			assert.Equal(t, "close", events[3]["name"])
		})
	}
}

func TestTraceSwapKeepsOldOnFailure(t *testing.T) {
	if thunk.Native == thunk.ArchUnknown {
		t.Skip("no closure templates for this architecture")
	}
	dir := t.TempDir()
	first := filepath.Join(dir, "first.json")
	s := quiet()
	s.Trace = first
	b, err := New(s)
	require.NoError(t, err)

	assert.Error(t, b.Change("Trace", filepath.Join(dir, "missing", "second.json")))
	assert.Equal(t, first, b.Settings().Trace)
	require.NotNil(t, b.trace)

	// the first trace still records
	_, err = b.Alloc(context.Background(), thunk.ClassNormal, 1, 2)
	require.NoError(t, err)
	second := filepath.Join(dir, "second.json")
	require.NoError(t, b.Change("Trace", second))
	assert.Equal(t, second, b.Settings().Trace)
	require.NoError(t, b.Close())

	names := []string{}
	for _, ev := range readTrace(t, first) {
		names = append(names, ev["name"].(string))
	}
	assert.Equal(t, []string{"map", "map", "grow"}, names)
	last := readTrace(t, second)
	require.NotEmpty(t, last)
	assert.Equal(t, "close", last[len(last)-1]["name"])
}
