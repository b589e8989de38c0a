package main

import (
	"fmt"
	"os"

	"github.com/chazu/monty/manifest"
	"github.com/chazu/monty/server"
)

// handleServeCommand starts the exec service:
//
//	monty serve [-listen addr]
func handleServeCommand(args []string, verbose bool) {
	var listen string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-listen" || arg == "--listen":
			if i+1 < len(args) {
				listen = args[i+1]
				i++
			}
		case arg == "-h" || arg == "--help":
			fmt.Println("Usage: monty serve [-listen addr]")
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
	if listen == "" {
		if mf != nil {
			listen = mf.Server.Listen
		} else {
			listen = manifest.Default(".").Server.Listen
		}
	}

	v, st, err := buildVM(mf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if st != nil {
		defer st.Close()
	}
	if verbose {
		fmt.Printf("Serving on %s\n", listen)
	}

	srv := server.New(v)
	defer srv.Stop()
	if err := srv.ListenAndServe(listen); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
