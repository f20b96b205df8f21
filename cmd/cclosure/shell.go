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
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"github.com/chzyer/readline"

	"github.com/launix-de/cclosure"
	"github.com/launix-de/cclosure/internal/native"
)

const newprompt = "\033[32m>\033[0m "
const resultprompt = "\033[31m=\033[0m "

// target is one of the C functions a shell closure can bind.
type target struct {
	name   string
	fcn    func() unsafe.Pointer
	aggRet bool
	args   string
	env    func(args []float64) unsafe.Pointer
	call   func(h unsafe.Pointer, args []float64) string
}

var targets = []target{
	{"mul", native.Mul, false, "k",
		func(a []float64) unsafe.Pointer { return native.NewInt(int32(a[0])) },
		func(h unsafe.Pointer, a []float64) string { return fmt.Sprint(native.CallInt(h, int32(a[0]))) }},
	{"scale", native.Scale, true, "k",
		func(a []float64) unsafe.Pointer { return native.NewLong(int64(a[0])) },
		func(h unsafe.Pointer, a []float64) string {
			return fmt.Sprint(native.CallTriple(h, native.Triple{A: int64(a[0]), B: int64(a[1]), C: int64(a[2])}))
		}},
	{"sum", native.Sum, false, "k",
		func(a []float64) unsafe.Pointer { return native.NewLong(int64(a[0])) },
		func(h unsafe.Pointer, a []float64) string {
			return fmt.Sprint(native.CallSum(h, native.Triple{A: int64(a[0]), B: int64(a[1]), C: int64(a[2])}))
		}},
	{"line", native.Line, false, "m b",
		func(a []float64) unsafe.Pointer { return native.NewLine(a[0], a[1]) },
		func(h unsafe.Pointer, a []float64) string { return fmt.Sprint(native.CallDouble(h, a[0])) }},
	{"format", native.Format, false, "k",
		func(a []float64) unsafe.Pointer { return native.NewInt(int32(a[0])) },
		func(h unsafe.Pointer, a []float64) string { return strconv.Quote(native.CallFormat(h)) }},
}

var callArgs = map[string]int{"mul": 1, "scale": 3, "sum": 3, "line": 1, "format": 0}

func findTarget(name string) (*target, bool) {
	for i := range targets {
		if targets[i].name == name {
			return &targets[i], true
		}
	}
	return nil, false
}

func targetOf(fcn unsafe.Pointer) (*target, bool) {
	for i := range targets {
		if targets[i].fcn() == fcn {
			return &targets[i], true
		}
	}
	return nil, false
}

type shell struct {
	alloc   *cclosure.Allocator
	handles map[unsafe.Pointer]string // live closures created by this shell

	// commands hold mu shared; close takes it exclusively so no closure is
	// running when the blocks go away
	mu     sync.RWMutex
	closed bool
}

func newShell(a *cclosure.Allocator) *shell {
	return &shell{alloc: a, handles: make(map[unsafe.Pointer]string)}
}

var errUsage = errors.New("usage")

func (s *shell) repl() {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            newprompt,
		HistoryFile:       ".cclosure-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			panic(err)
		}
		line = strings.TrimSpace(line)
		if line == "exit" || line == "quit" {
			break
		}
		if line != "" {
			s.exec(line)
		}
	}
}

// exec runs one command line and prints its result. A panicking command
// does not end the shell.
func (s *shell) exec(line string) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Println("panic:", r, string(debug.Stack()))
		}
	}()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		fmt.Println("error:", cclosure.ErrClosed)
		return
	}
	out, err := s.run(strings.Fields(line))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if out != "" {
		fmt.Print(resultprompt)
		fmt.Println(out)
	}
}

func (s *shell) run(f []string) (string, error) {
	if len(f) == 0 {
		return "", nil
	}
	cmd, args := f[0], f[1:]
	switch cmd {
	case "help":
		return help(), nil
	case "new":
		if len(args) < 1 {
			return "", fmt.Errorf("%w: new target args...", errUsage)
		}
		t, ok := findTarget(args[0])
		if !ok {
			return "", fmt.Errorf("unknown target %q", args[0])
		}
		nums, err := parseNums(args[1:], len(strings.Fields(t.args)))
		if err != nil {
			return "", err
		}
		env := t.env(nums)
		h, err := s.alloc.New(t.fcn(), env, t.aggRet)
		if err != nil {
			native.Release(env)
			return "", err
		}
		s.handles[h] = t.name + " " + strings.Join(args[1:], " ")
		return fmt.Sprintf("%#x", uintptr(h)), nil
	case "call":
		h, err := s.resolve(args)
		if err != nil {
			return "", err
		}
		t, ok := targetOf(s.alloc.GetFcn(h))
		if !ok || !s.alloc.Check(h) {
			// calling it would trap
			return "", cclosure.ErrNotLive
		}
		nums, err := parseNums(args[1:], callArgs[t.name])
		if err != nil {
			return "", err
		}
		return t.call(h, nums), nil
	case "free":
		h, err := s.resolve(args)
		if err != nil {
			return "", err
		}
		env, err := s.alloc.Free(h)
		if err != nil {
			return "", err
		}
		if _, ours := s.handles[h]; ours {
			native.Release(env)
			delete(s.handles, h)
		}
		return "freed", nil
	case "check":
		addr, err := s.handle(args)
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(s.alloc.CheckAddr(addr)), nil
	case "fcn", "env":
		h, err := s.resolve(args)
		if err != nil {
			return "", err
		}
		p := s.alloc.GetEnv(h)
		if cmd == "fcn" {
			p = s.alloc.GetFcn(h)
			if t, ok := targetOf(p); ok {
				return fmt.Sprintf("%#x (%s)", uintptr(p), t.name), nil
			}
		}
		return fmt.Sprintf("%#x", uintptr(p)), nil
	case "list":
		lines := make([]string, 0, len(s.handles))
		for h, desc := range s.handles {
			lines = append(lines, fmt.Sprintf("%#x %s", uintptr(h), desc))
		}
		sort.Strings(lines)
		return strings.Join(lines, "\n"), nil
	case "stats":
		return s.alloc.Bank().Stats().String(), nil
	case "verify":
		rep, err := s.alloc.Bank().Verify()
		if err != nil {
			return strings.Join(rep.Issues, "\n"), err
		}
		return fmt.Sprintf("ok: %d blocks, %d slots, %d free, %d live, %d pending", rep.Blocks, rep.Slots, rep.Free, rep.Live, rep.Pending), nil
	case "set":
		b := s.alloc.Bank()
		st := b.Settings()
		switch len(args) {
		case 0:
			var lines []string
			for _, k := range st.Keys() {
				v, _ := st.Get(k)
				lines = append(lines, k+" = "+v)
			}
			return strings.Join(lines, "\n"), nil
		case 1:
			return st.Get(args[0])
		}
		if err := b.Change(args[0], strings.Join(args[1:], " ")); err != nil {
			return "", err
		}
		return "ok", nil
	}
	return "", fmt.Errorf("unknown command %q, try help", cmd)
}

// handle parses the address in args[0]. It stays an integer until the bank
// confirms it names a slot.
func (s *shell) handle(args []string) (uintptr, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("%w: missing closure handle", errUsage)
	}
	v, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return 0, err
	}
	if uint64(uintptr(v)) != v {
		return 0, cclosure.ErrInvalidHandle
	}
	return uintptr(v), nil
}

func (s *shell) resolve(args []string) (unsafe.Pointer, error) {
	addr, err := s.handle(args)
	if err != nil {
		return nil, err
	}
	ref, ok := s.alloc.Bank().ResolveAddr(addr)
	if !ok {
		return nil, cclosure.ErrInvalidHandle
	}
	return ref.Handle(), nil
}

func parseNums(args []string, want int) ([]float64, error) {
	if len(args) != want {
		return nil, fmt.Errorf("%w: want %d numbers, got %d", errUsage, want, len(args))
	}
	nums := make([]float64, want)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, err
		}
		nums[i] = v
	}
	return nums, nil
}

// close frees what the shell created and closes the allocator. It waits
// for running commands and may be called more than once.
func (s *shell) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for h := range s.handles {
		if env, err := s.alloc.Free(h); err == nil {
			native.Release(env)
		}
	}
	s.handles = nil
	s.alloc.Close()
}

// stress runs runStress unless the shell is closed.
func (s *shell) stress(ctx context.Context, n, workers int) (stressResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return stressResult{}, cclosure.ErrClosed
	}
	return runStress(ctx, s.alloc, n, workers)
}

func help() string {
	var b strings.Builder
	b.WriteString("commands:\n")
	for _, t := range targets {
		fmt.Fprintf(&b, "  new %s %s\n", t.name, t.args)
	}
	b.WriteString(`  call HANDLE args...   call a closure from C (mul x, scale a b c, sum a b c, line x, format)
  free HANDLE           free a closure
  check HANDLE          is HANDLE a live closure
  fcn HANDLE            bound target
  env HANDLE            bound environment
  list                  closures created in this shell
  stats                 pool statistics
  verify                check all free lists
  set [KEY [VALUE]]     show or change settings
  exit`)
	return b.String()
}
