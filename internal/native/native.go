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

// Package native holds C closure targets and C call sites. Closures are
// entered from C here so the calls follow the platform ABI exactly.
package native

/*
#include <stdarg.h>
#include <stdio.h>
#include <stdlib.h>

#if defined(__x86_64__)
typedef struct { void *env; void *pad[2]; void *ret; } cctx;
#else
typedef struct { void *env; void *ret; } cctx;
#endif

typedef struct { long a, b, c; } triple;
typedef struct { double m, b; } line;

extern void nativeSelfFree(void *env);

// targets: what a closure calls, with the context first

static int mul(cctx ctx, int x) { return *(int *)ctx.env * x; }

static triple scale(cctx ctx, triple v) {
	long k = *(long *)ctx.env;
	triple r = { v.a * k, v.b * k, v.c * k };
	return r;
}

static long sum(cctx ctx, triple v) { return (v.a + v.b + v.c) * *(long *)ctx.env; }

static double eval_line(cctx ctx, double x) {
	line *l = ctx.env;
	return l->m * x + l->b;
}

static int vformat(cctx ctx, char *buf, size_t n, const char *fmt, ...) {
	int k = snprintf(buf, n, "Closure %d: ", *(int *)ctx.env);
	if (k < 0 || (size_t)k >= n) return k;
	va_list ap;
	va_start(ap, fmt);
	int r = vsnprintf(buf + k, n - k, fmt, ap);
	va_end(ap);
	return r < 0 ? r : k + r;
}

static int self_free(cctx ctx, int x) {
	nativeSelfFree(ctx.env);
	return x + 1;
}

static triple self_free_scale(cctx ctx, triple v) {
	nativeSelfFree(ctx.env);
	triple r = { v.a + 1, v.b + 1, v.c + 1 };
	return r;
}

static void *ret_of(cctx ctx) { return ctx.ret; }

static void *addr_mul(void) { return (void *)mul; }
static void *addr_scale(void) { return (void *)scale; }
static void *addr_sum(void) { return (void *)sum; }
static void *addr_line(void) { return (void *)eval_line; }
static void *addr_vformat(void) { return (void *)vformat; }
static void *addr_self_free(void) { return (void *)self_free; }
static void *addr_self_free_scale(void) { return (void *)self_free_scale; }
static void *addr_ret_of(void) { return (void *)ret_of; }

// call sites: what a C library does with the handle it was given

typedef int (*int_fn)(int);
typedef triple (*triple_fn)(triple);
typedef long (*sum_fn)(triple);
typedef double (*double_fn)(double);
typedef int (*format_fn)(char *, size_t, const char *, ...);
typedef void *(*ret_fn)(void);

static int call_int(void *fn, int x) { return ((int_fn)fn)(x); }

static long call_int_loop(void *fn, int x, int want, long n) {
	long ok = 0;
	for (long i = 0; i < n; i++) {
		ok += ((int_fn)fn)(x) == want;
	}
	return ok;
}

static long call_int_range(void *fn, int k, long n) {
	long ok = 0;
	for (long i = 0; i < n; i++) {
		ok += ((int_fn)fn)((int)i) == k * (int)i;
	}
	return ok;
}

static triple call_triple(void *fn, long a, long b, long c) {
	triple v = { a, b, c };
	return ((triple_fn)fn)(v);
}

static long call_sum(void *fn, long a, long b, long c) {
	triple v = { a, b, c };
	return ((sum_fn)fn)(v);
}

static double call_double(void *fn, double x) { return ((double_fn)fn)(x); }

static int call_format(void *fn, char *buf, size_t n) {
	return ((format_fn)fn)(buf, n, "%d, %s, %.2f", 42, "test", 3.14);
}

__attribute__((noinline)) static void *call_ret(void *fn) { return ((ret_fn)fn)(); }
*/
import "C"

import "unsafe"

// Triple mirrors the C aggregate of three longs.
type Triple struct {
	A, B, C int64
}

// target addresses

func Mul() unsafe.Pointer           { return C.addr_mul() }
func Scale() unsafe.Pointer         { return C.addr_scale() }
func Sum() unsafe.Pointer           { return C.addr_sum() }
func Line() unsafe.Pointer          { return C.addr_line() }
func Format() unsafe.Pointer        { return C.addr_vformat() }
func SelfFreeInt() unsafe.Pointer   { return C.addr_self_free() }
func SelfFreeScale() unsafe.Pointer { return C.addr_self_free_scale() }
func RetOf() unsafe.Pointer         { return C.addr_ret_of() }

// environments live in C memory so native code may keep them

func NewInt(v int32) unsafe.Pointer {
	p := C.malloc(C.size_t(unsafe.Sizeof(C.int(0))))
	*(*C.int)(p) = C.int(v)
	return p
}

func NewLong(v int64) unsafe.Pointer {
	p := C.malloc(C.size_t(unsafe.Sizeof(C.long(0))))
	*(*C.long)(p) = C.long(v)
	return p
}

func NewLine(m, b float64) unsafe.Pointer {
	p := C.malloc(C.size_t(unsafe.Sizeof(C.line{})))
	l := (*C.line)(p)
	l.m, l.b = C.double(m), C.double(b)
	return p
}

// NewIntArray allocates n ints holding 0..n-1. Element i is at offset 4*i.
func NewIntArray(n int) unsafe.Pointer {
	p := C.malloc(C.size_t(n) * C.size_t(unsafe.Sizeof(C.int(0))))
	vals := unsafe.Slice((*C.int)(p), n)
	for i := range vals {
		vals[i] = C.int(i)
	}
	return p
}

// NewSlot allocates room for one pointer, used to hand a closure its own
// handle.
func NewSlot() unsafe.Pointer {
	return C.malloc(C.size_t(unsafe.Sizeof(uintptr(0))))
}

func Release(p unsafe.Pointer) {
	C.free(p)
}

// callers

func CallInt(fn unsafe.Pointer, x int32) int32 {
	return int32(C.call_int(fn, C.int(x)))
}

// CallIntLoop calls fn(x) n times from C and counts the calls returning want.
func CallIntLoop(fn unsafe.Pointer, x, want int32, n int64) int64 {
	return int64(C.call_int_loop(fn, C.int(x), C.int(want), C.long(n)))
}

// CallIntRange calls fn(i) for i in [0,n) and counts the results equal to k*i.
func CallIntRange(fn unsafe.Pointer, k int32, n int64) int64 {
	return int64(C.call_int_range(fn, C.int(k), C.long(n)))
}

func CallTriple(fn unsafe.Pointer, v Triple) Triple {
	r := C.call_triple(fn, C.long(v.A), C.long(v.B), C.long(v.C))
	return Triple{int64(r.a), int64(r.b), int64(r.c)}
}

func CallSum(fn unsafe.Pointer, v Triple) int64 {
	return int64(C.call_sum(fn, C.long(v.A), C.long(v.B), C.long(v.C)))
}

func CallDouble(fn unsafe.Pointer, x float64) float64 {
	return float64(C.call_double(fn, C.double(x)))
}

// CallFormat passes (42, "test", 3.14) through a variadic closure.
func CallFormat(fn unsafe.Pointer) string {
	buf := make([]byte, 128)
	n := C.call_format(fn, (*C.char)(unsafe.Pointer(&buf[0])), C.size_t(len(buf)))
	if n < 0 {
		return ""
	}
	if int(n) >= len(buf) {
		n = C.int(len(buf) - 1)
	}
	return string(buf[:n])
}

// CallRet returns the Ret field its target saw.
func CallRet(fn unsafe.Pointer) unsafe.Pointer {
	return C.call_ret(fn)
}
