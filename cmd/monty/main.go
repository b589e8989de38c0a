// Monty CLI - run, inspect and serve compiled program images.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: monty [options] <command> [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run <file.mprg>      Execute a program image\n")
	fmt.Fprintf(os.Stderr, "  disasm <file.mprg>   Disassemble a program image\n")
	fmt.Fprintf(os.Stderr, "  check [file.mprg]    Verify an image, or the monty.toml manifest\n")
	fmt.Fprintf(os.Stderr, "  serve                Start the exec server\n")
	fmt.Fprintf(os.Stderr, "  profile              Show the recorded profile report\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  monty run app.mprg -m main     # Run app.mprg, then call main()\n")
	fmt.Fprintf(os.Stderr, "  monty run -profile app.mprg    # Record execution counts\n")
	fmt.Fprintf(os.Stderr, "  monty serve -listen :7821      # Serve the exec service\n")
	fmt.Fprintf(os.Stderr, "  monty profile -n 10            # Top 10 functions by activity\n")
}

func main() {
	verbose := flag.Bool("v", false, "verbose output")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "run":
		handleRunCommand(rest, *verbose)
	case "disasm":
		handleDisasmCommand(rest)
	case "check":
		handleCheckCommand(rest, *verbose)
	case "serve":
		handleServeCommand(rest, *verbose)
	case "profile":
		handleProfileCommand(rest)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", cmd)
		usage()
		os.Exit(1)
	}
}
