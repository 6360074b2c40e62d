// Package main provides the entry point for Aeon.
// Aeon runs DOS .COM and .EXE programs on an x86 emulator.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"

	"github.com/go-logr/logr/funcr"

	"github.com/gregdivis/Aeon-sub003/config"
	"github.com/gregdivis/Aeon-sub003/loader"
	"github.com/gregdivis/Aeon-sub003/timing/latency"
)

var (
	configPath = flag.String("config", "", "Path to machine configuration (JSON or YAML)")
	timing     = flag.Bool("timing", false, "Enable cycle accounting with default latencies")
	maxInsts   = flag.Uint64("max", 0, "Stop after this many instructions (0 uses the config)")
	verbosity  = flag.Int("v", 0, "Log verbosity")
	cpuProfile = flag.String("cpuprofile", "", "Write a CPU profile to file")
	memProfile = flag.String("memprofile", "", "Write a memory profile to file")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: aeon [options] <program.com|program.exe> [args...]\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	os.Exit(int(run(flag.Arg(0), flag.Args()[1:])))
}

func run(programPath string, args []string) int64 {
	log := funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, args)
		} else {
			fmt.Fprintln(os.Stderr, args)
		}
	}, funcr.Options{Verbosity: *verbosity})

	m := config.Default()
	if *configPath != "" {
		var err error
		m, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			return 1
		}
	}
	if *timing && m.Timing == nil {
		m.Timing = latency.DefaultTimingConfig()
	}
	if *maxInsts > 0 {
		m.MaxInstructions = *maxInsts
	}

	prog, err := loader.Load(programPath, m.PSPSegment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		return 1
	}
	log.V(1).Info("loaded", "path", programPath, "format", prog.Format,
		"entry", fmt.Sprintf("%04X:%04X", prog.CS, prog.IP), "size", len(prog.Image))

	mach, err := newMachine(m, prog, strings.Join(args, " "), os.Stdin, os.Stdout, os.Stderr, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building machine: %v\n", err)
		return 1
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			return 1
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	exitCode, err := mach.run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = 1
	}

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
		} else {
			if err := pprof.WriteHeapProfile(f); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
			}
			_ = f.Close()
		}
	}

	if *verbosity > 0 || m.Timing != nil || m.Cache != nil {
		printStats(os.Stderr, programPath, exitCode, mach)
	}

	return exitCode
}

func printStats(w io.Writer, programPath string, exitCode int64, mach *machine) {
	stats := mach.stats()

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Program: %s\n", programPath)
	fmt.Fprintf(w, "VM: %s\n", mach.emu.ID())
	fmt.Fprintf(w, "Exit code: %d\n", exitCode)
	fmt.Fprintf(w, "Instructions executed: %d\n", stats.Instructions)
	if stats.Cycles > 0 {
		fmt.Fprintf(w, "Total Cycles: %d\n", stats.Cycles)
		fmt.Fprintf(w, "CPI: %.2f\n", stats.CPI())
	}
	if mach.timed != nil {
		cs := mach.timed.Cache().Stats()
		fmt.Fprintf(w, "\n")
		fmt.Fprintf(w, "Cache:\n")
		fmt.Fprintf(w, "  Reads:         %d\n", cs.Reads)
		fmt.Fprintf(w, "  Writes:        %d\n", cs.Writes)
		fmt.Fprintf(w, "  Hit rate:      %5.1f%%\n", 100*cs.HitRate())
		fmt.Fprintf(w, "  Evictions:     %d\n", cs.Evictions)
		fmt.Fprintf(w, "  Writebacks:    %d\n", cs.Writebacks)
		fmt.Fprintf(w, "  Memory cycles: %d\n", stats.MemoryCycles)
	}
	fmt.Fprintf(w, "Timer ticks: %d\n", stats.Ticks)
}
