package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/chazu/monty/manifest"
	"github.com/chazu/monty/store"
)

// handleProfileCommand reports on recorded profile data:
//
//	monty profile [-n limit] [-ops]
func handleProfileCommand(args []string) {
	limit := 20
	ops := false

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-n" || arg == "--limit":
			if i+1 < len(args) {
				n, err := strconv.Atoi(args[i+1])
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: bad limit %q\n", args[i+1])
					os.Exit(1)
				}
				limit = n
				i++
			}
		case arg == "-ops" || arg == "--ops":
			ops = true
		case arg == "-h" || arg == "--help":
			fmt.Println("Usage: monty profile [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  -n <limit>   Number of functions to show (default 20)")
			fmt.Println("  -ops         Show per-opcode execution counts instead")
			return
		default:
			fmt.Fprintf(os.Stderr, "Error: unexpected argument %q\n", arg)
			os.Exit(1)
		}
	}

	mf, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if mf == nil {
		mf = manifest.Default(".")
	}

	ps, err := store.OpenProfile(mf.ProfileStorePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer ps.Close()

	if ops {
		printOpReport(ps)
		return
	}
	printFuncReport(ps, limit)
}

func printFuncReport(ps *store.ProfileStore, limit int) {
	stats, err := ps.FuncReport(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(stats) == 0 {
		fmt.Println("No profile data recorded. Run with: monty run -profile <file.mprg>")
		return
	}

	fmt.Printf("%-40s %10s %10s  %s\n", "FUNCTION", "CALLS", "RESUMES", "HOT")
	for _, s := range stats {
		hot := ""
		if s.Hot {
			hot = "*"
		}
		fmt.Printf("%-40s %10d %10d  %s\n", s.Name, s.Calls, s.Resumes, hot)
	}
}

func printOpReport(ps *store.ProfileStore) {
	stats, err := ps.OpReport()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(stats) == 0 {
		fmt.Println("No profile data recorded. Run with: monty run -profile <file.mprg>")
		return
	}

	fmt.Printf("%-24s %12s\n", "OPCODE", "COUNT")
	for _, s := range stats {
		fmt.Printf("%-24s %12d\n", s.Name, s.Count)
	}
}
