// Package main is the entry point for the memkit CLI.
//
// Usage:
//
//	memkit [flags] <command> [subcommand] [args]
//
// Commands:
//
//	remember   - Save a memory through the write gates
//	recall     - Search memories by meaning and keywords
//	reflect    - Consolidate the journal and age out faded memories
//	prime      - Print the session-start context block
//	rules      - Manage standing rules
//	list       - List, get, update, pin, forget memories
//	export     - Snapshot a tenant to JSONL (import restores)
//	stats      - Show record counts
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/memkit/cmd/memkit/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
