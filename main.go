// Package main provides the entry point for Aeon.
// Aeon is an x86 emulator for DOS programs with an optional latency and
// cache timing model.
//
// For the full CLI, use: go run ./cmd/aeon
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("Aeon - x86 DOS Emulator")
	fmt.Println("")
	fmt.Println("Usage: aeon [options] <program.com|program.exe> [args...]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config      Path to machine configuration (JSON or YAML)")
	fmt.Println("  -timing      Enable cycle accounting with default latencies")
	fmt.Println("  -max         Stop after this many instructions")
	fmt.Println("  -v           Log verbosity")
	fmt.Println("  -cpuprofile  Write a CPU profile to file")
	fmt.Println("  -memprofile  Write a memory profile to file")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/aeon' for the full CLI and")
	fmt.Println("'go run ./cmd/benchmark' for the timing microbenchmarks.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/aeon' instead.")
	}
}
