// Package vm implements the Monty virtual machine.
//
// This package contains:
//   - Tagged value representation and container types
//   - Bytecode definitions, assembly helpers, and disassembly
//   - Stack-frame interpreter with block-based exception unwinding
//   - Closures, classes with C3 linearization, generators and coroutines
//   - Module loading, builtins, and the program file codec
package vm
