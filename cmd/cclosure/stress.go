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
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/launix-de/cclosure"
	"github.com/launix-de/cclosure/bank"
	"github.com/launix-de/cclosure/internal/native"
)

type stressResult struct {
	n, workers int
	elapsed    time.Duration
	stats      bank.Stats
	report     bank.Report
}

func (r stressResult) String() string {
	return fmt.Sprintf("%d closures on %d workers in %v\n%s\nverify: %d free, %d live, %d pending",
		r.n, r.workers, r.elapsed, r.stats, r.report.Free, r.report.Live, r.report.Pending)
}

// runStress has each worker create its share of n closures, call every one
// from C, then free the even ones and call the odd ones again before
// freeing them too. It stops at the first wrong result.
func runStress(ctx context.Context, a *cclosure.Allocator, n, workers int) (stressResult, error) {
	if workers < 1 {
		workers = 1
	}
	res := stressResult{n: n, workers: workers}
	envs := native.NewIntArray(n)
	defer native.Release(envs)

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			var mine []unsafe.Pointer
			defer func() {
				for _, h := range mine {
					a.Free(h)
				}
			}()
			for i := w; i < n; i += workers {
				h, err := a.NewContext(ctx, native.Mul(), unsafe.Add(envs, 4*i), false)
				if err != nil {
					return err
				}
				mine = append(mine, h)
				if got := native.CallInt(h, 3); got != int32(3*i) {
					return fmt.Errorf("closure %d returned %d, want %d", i, got, 3*i)
				}
			}
			odd := mine[:0]
			for j, h := range mine {
				if j%2 == 0 {
					if _, err := a.Free(h); err != nil {
						return err
					}
				} else {
					odd = append(odd, h)
				}
			}
			mine = odd
			for j, h := range mine {
				i := w + (2*j+1)*workers
				if got := native.CallInt(h, 1); got != int32(i) {
					return fmt.Errorf("closure %d returned %d after neighbours were freed", i, got)
				}
			}
			return nil
		})
	}
	err := g.Wait()
	res.elapsed = time.Since(start)
	res.stats = a.Bank().Stats()
	rep, verr := a.Bank().Verify()
	res.report = rep
	if err == nil {
		err = verr
	}
	return res, err
}
