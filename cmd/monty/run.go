package main

import (
	"fmt"
	"os"

	"github.com/chazu/monty/manifest"
	"github.com/chazu/monty/store"
	"github.com/chazu/monty/vm"
)

// buildVM assembles a VM configured from the manifest: recursion limit,
// profiler threshold and the store-backed module loader. The returned
// store is nil when no manifest was found.
func buildVM(mf *manifest.Manifest) (*vm.VM, *store.Store, error) {
	v := vm.NewVM()
	if mf == nil {
		return v, nil, nil
	}

	v.SetMaxDepth(mf.Interp.MaxDepth)
	v.Profiler().HotThreshold = uint64(mf.Interp.HotThreshold)
	if mf.Interp.Profile {
		v.Profiler().Enable()
	}

	st, err := store.Open(mf.StorePath())
	if err != nil {
		return nil, nil, fmt.Errorf("opening module store: %w", err)
	}
	v.SetLoader(store.NewLoader(v, st, mf.ModulePaths()))
	return v, st, nil
}

// handleRunCommand executes a program image:
//
//	monty run [options] <file.mprg>
func handleRunCommand(args []string, verbose bool) {
	var path, entry string
	profile := false

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-m" || arg == "--main":
			if i+1 < len(args) {
				entry = args[i+1]
				i++
			}
		case arg == "-profile" || arg == "--profile":
			profile = true
		case arg == "-h" || arg == "--help":
			fmt.Println("Usage: monty run [options] <file.mprg>")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  -m <name>    Call <name>() after the module body runs")
			fmt.Println("  -profile     Record execution counts into the profile store")
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

	mf, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if entry == "" && mf != nil {
		entry = mf.Modules.Entry
	}

	v, st, err := buildVM(mf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if profile {
		v.Profiler().Enable()
	}

	name, code, err := vm.ReadProgramFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if verbose {
		fmt.Printf("Loaded %s (module %q)\n", path, name)
	}

	mod, err := v.RunModule(name, code)
	if err != nil {
		fmt.Fprint(os.Stderr, vm.AsException(err).FormatTraceback())
		os.Exit(1)
	}

	exit := 0
	if entry != "" {
		fn, ok := mod.Get(entry)
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: function %q not found in module %q\n", entry, name)
			os.Exit(1)
		}
		result, err := v.Call(fn)
		if err != nil {
			fmt.Fprint(os.Stderr, vm.AsException(err).FormatTraceback())
			os.Exit(1)
		}
		// An integer returned from the entry function becomes the exit code.
		if result.Kind() == vm.KindInt {
			exit = int(result.Int())
		}
	}

	if v.Profiler().Enabled() {
		flushProfile(v, mf)
	}
	if st != nil {
		st.Close()
	}
	os.Exit(exit)
}

// flushProfile persists recorded counters so a later "monty profile"
// can report on them.
func flushProfile(v *vm.VM, mf *manifest.Manifest) {
	if mf == nil {
		mf = manifest.Default(".")
	}
	ps, err := store.OpenProfile(mf.ProfileStorePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot open profile store: %v\n", err)
		return
	}
	defer ps.Close()
	if err := ps.Flush(v.Profiler()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot flush profile: %v\n", err)
	}
}
