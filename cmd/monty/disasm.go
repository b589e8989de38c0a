package main

import (
	"fmt"
	"os"

	"github.com/chazu/monty/vm"
)

// handleDisasmCommand prints a listing of every code object in an image:
//
//	monty disasm <file.mprg>
func handleDisasmCommand(args []string) {
	var path string
	for _, arg := range args {
		switch arg {
		case "-h", "--help":
			fmt.Println("Usage: monty disasm <file.mprg>")
			return
		default:
			if path != "" {
				fmt.Fprintf(os.Stderr, "Error: unexpected argument %q\n", arg)
				os.Exit(1)
			}
			path = arg
		}
	}

	if path == "" {
		fmt.Fprintf(os.Stderr, "Error: no program image given\n")
		os.Exit(1)
	}

	name, code, err := vm.ReadProgramFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("module %s\n\n", name)
	fmt.Print(vm.DisassembleAll(code))
}
