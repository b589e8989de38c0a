package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/chazu/monty/manifest"
	"github.com/chazu/monty/vm"
)

// handleCheckCommand verifies a program image, or with no arguments the
// project manifest:
//
//	monty check [file.mprg]
func handleCheckCommand(args []string, verbose bool) {
	var path string
	for _, arg := range args {
		switch arg {
		case "-h", "--help":
			fmt.Println("Usage: monty check [file.mprg]")
			fmt.Println()
			fmt.Println("With a file argument, decodes and verifies the image.")
			fmt.Println("Without one, loads and validates the nearest monty.toml.")
			return
		default:
			if path != "" {
				fmt.Fprintf(os.Stderr, "Error: unexpected argument %q\n", arg)
				os.Exit(1)
			}
			path = arg
		}
	}

	if path != "" {
		checkImage(path, verbose)
		return
	}
	checkManifest()
}

func checkImage(path string, verbose bool) {
	name, code, err := vm.ReadProgramFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	objects, bytecode := countCode(code)
	fmt.Printf("%s: ok\n", path)
	fmt.Printf("  module:       %s\n", name)
	fmt.Printf("  code objects: %d\n", objects)
	fmt.Printf("  bytecode:     %d bytes\n", bytecode)
	if verbose {
		fmt.Printf("  constants:    %d\n", len(code.Constants))
		fmt.Printf("  names:        %s\n", strings.Join(code.Names, ", "))
	}
}

// countCode totals code objects and bytecode bytes, including nested
// function bodies stored as constants.
func countCode(c *vm.Code) (objects, bytecode int) {
	objects = 1
	bytecode = len(c.Bytecode)
	for _, v := range c.Constants {
		if v.Kind() == vm.KindCode {
			o, b := countCode(v.Code())
			objects += o
			bytecode += b
		}
	}
	return objects, bytecode
}

func checkManifest() {
	mf, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if mf == nil {
		fmt.Fprintf(os.Stderr, "Error: no monty.toml found here or in any parent directory\n")
		os.Exit(1)
	}

	fmt.Printf("%s: ok\n", mf.Dir)
	if mf.Project.Name != "" {
		fmt.Printf("  project:       %s %s\n", mf.Project.Name, mf.Project.Version)
	}
	fmt.Printf("  module paths:  %s\n", strings.Join(mf.ModulePaths(), ", "))
	if mf.Modules.Entry != "" {
		fmt.Printf("  entry:         %s\n", mf.Modules.Entry)
	}
	fmt.Printf("  max depth:     %d\n", mf.Interp.MaxDepth)
	fmt.Printf("  store:         %s\n", mf.StorePath())
	fmt.Printf("  profile store: %s\n", mf.ProfileStorePath())
	fmt.Printf("  listen:        %s\n", mf.Server.Listen)
}
