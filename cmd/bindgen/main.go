// Bindgen generates VM builtin bindings for a Go package.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chazu/monty/bindgen"
)

var (
	output = flag.String("o", "", "output file (default stdout)")
	only   = flag.String("only", "", "comma-separated list of exported names to include")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Bindgen - generate VM builtin bindings for a Go package\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  bindgen [options] import/path\n\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  bindgen strings > bind_strings.go\n")
		fmt.Fprintf(os.Stderr, "  bindgen -only Atoi,Itoa -o bind_strconv.go strconv\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	importPath := flag.Arg(0)

	var filter map[string]bool
	if *only != "" {
		filter = make(map[string]bool)
		for _, name := range strings.Split(*only, ",") {
			filter[strings.TrimSpace(name)] = true
		}
	}

	model, err := bindgen.IntrospectPackage(importPath, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error introspecting %s: %v\n", importPath, err)
		os.Exit(1)
	}

	code, err := bindgen.GenerateBindings(model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating bindings: %v\n", err)
		os.Exit(1)
	}

	if *output == "" {
		fmt.Print(code)
		return
	}
	if err := os.WriteFile(*output, []byte(code), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *output, err)
		os.Exit(1)
	}
}
