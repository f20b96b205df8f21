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

/*
	cclosure inspection shell

	creates, calls and frees closures over the built-in C targets and shows
	what the executable slot pool does meanwhile.

*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/dc0d/onexit"

	"github.com/launix-de/cclosure"
	"github.com/launix-de/cclosure/bank"
)

// workaround for flags package to allow multiple values
type arrayFlags []string

func (i *arrayFlags) String() string {
	return "dummy"
}

func (i *arrayFlags) Set(value string) error {
	*i = append(*i, value)
	return nil
}

func main() {
	fmt.Print(`cclosure Copyright (C) 2026   Carl-Philip Hänsch
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;

`)

	var commands arrayFlags
	flag.Var(&commands, "c", "Execute shell command (repeatable)")
	config := flag.String("config", "", "JSON settings file, re-applied when it changes")
	stress := flag.Int("stress", 0, "Create, call and free this many closures, then exit")
	workers := flag.Int("workers", 8, "Goroutines for -stress")
	profile := flag.String("profile", "", "Write a CPU profile to this file")
	flag.Parse()

	settings, err := bank.SettingsFromEnv()
	if err != nil {
		panic(err)
	}
	alloc, err := cclosure.NewAllocator(settings)
	if err != nil {
		panic(err)
	}
	sh := newShell(alloc)
	onexit.Register(sh.close)

	// onexit tears the shell down on these, so the process has to end too
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTSTP)
	defer stop()
	go func() {
		<-ctx.Done()
		onexit.ForceExit(1)
	}()

	if *config != "" {
		if err := watchConfig(ctx, *config, alloc.Bank()); err != nil {
			panic(err)
		}
	}

	if *profile != "" {
		f, err := os.Create(*profile)
		if err != nil {
			panic(err)
		}
		pprof.StartCPUProfile(f)
		onexit.Register(func() {
			pprof.StopCPUProfile()
			f.Close()
		}, -1)
	}

	for _, command := range commands {
		fmt.Println("Executing " + command + " ...")
		sh.exec(command)
	}

	code := 0
	if *stress > 0 {
		res, err := sh.stress(ctx, *stress, *workers)
		fmt.Println(res)
		if err != nil {
			fmt.Println("stress:", err)
			code = 1
		}
	} else if len(commands) == 0 {
		fmt.Print(`
    Type help to show help

`)
		sh.repl()
	}
	if ctx.Err() != nil {
		code = 1
	}
	onexit.ForceExit(code)
}
