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
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Tracefile writes chrome://tracing JSON events.
type Tracefile struct {
	isFirst bool
	file    io.Writer
	closers []io.Closer
	m       sync.Mutex
	start   time.Time
}

// OpenTrace creates path and writes events to it. A .xz or .lz4 suffix
// compresses the stream.
func OpenTrace(path string) (*Tracefile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasSuffix(path, ".xz"):
		zw, err := xz.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return newTrace(zw, zw, f), nil
	case strings.HasSuffix(path, ".lz4"):
		zw := lz4.NewWriter(f)
		return newTrace(zw, zw, f), nil
	}
	return NewTrace(f), nil
}

// NewTrace writes events to file; Close closes it.
func NewTrace(file io.WriteCloser) *Tracefile {
	return newTrace(file, file)
}

// closers run innermost first, so a compressor flushes before its file closes
func newTrace(w io.Writer, closers ...io.Closer) *Tracefile {
	w.Write([]byte("["))
	return &Tracefile{isFirst: true, file: w, closers: closers, start: time.Now()}
}

func (t *Tracefile) Close() error {
	t.m.Lock()
	defer t.m.Unlock()
	if t.closers == nil {
		return nil
	}
	t.file.Write([]byte("]"))
	var first error
	for _, c := range t.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	t.closers = nil
	return first
}

// Duration records f as a begin/end pair.
func (t *Tracefile) Duration(name, cat string, pid string, f func()) {
	t.Event(name, cat, "B", pid)
	defer t.Event(name, cat, "E", pid)
	f()
}

// Event records an instant (typ "i") or a begin/end half ("B"/"E").
func (t *Tracefile) Event(name, cat, typ, pid string) {
	t.EventFull(name, cat, typ, t.Now(), pid, nil)
}

// Now is the trace clock in microseconds.
func (t *Tracefile) Now() int64 {
	return time.Since(t.start).Microseconds()
}

type traceEvent struct {
	Name  string         `json:"name"`
	Cat   string         `json:"cat"`
	Ph    string         `json:"ph"`
	Ts    int64          `json:"ts"`
	Pid   string         `json:"pid"`
	Tid   int            `json:"tid"`
	Scope string         `json:"s,omitempty"`
	Args  map[string]any `json:"args,omitempty"`
}

/*
@name event name
@cat comma separated categories (for filtering)
@typ B/E for begin/end, i for instants
@ts timestamp in microseconds
@pid bank id
*/
func (t *Tracefile) EventFull(name, cat, typ string, ts int64, pid string, args map[string]any) {
	ev := traceEvent{Name: name, Cat: cat, Ph: typ, Ts: ts, Pid: pid, Args: args}
	if typ == "i" {
		ev.Scope = "g"
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	t.m.Lock()
	defer t.m.Unlock()
	if t.closers == nil {
		return
	}
	if t.isFirst {
		t.isFirst = false
	} else {
		t.file.Write([]byte(",\n"))
	}
	t.file.Write(b)
}
