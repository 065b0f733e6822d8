// Command chronoproofctl is a standalone tool for creating, upgrading and
// verifying chronoproof timestamp proofs without a running daemon.
//
// Usage:
//
//	chronoproofctl <command> [flags] <args>
//
// Commands:
//
//	stamp    create a detached timestamp proof for a file
//	upgrade  poll calendars and merge any new attestations into a proof
//	verify   check a proof against a Bitcoin block header oracle
//	info     print a proof tree in text, cbor or yaml form
package main

import (
	"fmt"
	"os"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		topUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "stamp":
		runStamp(os.Args[2:])
	case "upgrade":
		runUpgrade(os.Args[2:])
	case "verify":
		runVerify(os.Args[2:])
	case "info":
		runInfo(os.Args[2:])
	case "-version", "--version", "version":
		fmt.Printf("chronoproofctl %s (commit: %s, built: %s)\n", version, commit, buildTime)
	case "-h", "-help", "--help", "help":
		topUsage()
	default:
		fmt.Fprintf(os.Stderr, "chronoproofctl: unknown command %q\n\n", os.Args[1])
		topUsage()
		os.Exit(2)
	}
}

func topUsage() {
	fmt.Fprintf(os.Stderr, "chronoproofctl - create, upgrade and verify timestamp proofs\n\n")
	fmt.Fprintf(os.Stderr, "Usage: chronoproofctl <command> [flags] <args>\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  stamp    create a detached timestamp proof for a file\n")
	fmt.Fprintf(os.Stderr, "  upgrade  poll calendars and merge any new attestations into a proof\n")
	fmt.Fprintf(os.Stderr, "  verify   check a proof against a Bitcoin block header oracle\n")
	fmt.Fprintf(os.Stderr, "  info     print a proof tree in text, cbor or yaml form\n\n")
	fmt.Fprintf(os.Stderr, "Run 'chronoproofctl <command> -h' for command-specific flags.\n")
}
