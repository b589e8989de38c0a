// Package bindgen introspects Go packages and generates builtin bindings
// for the VM.
package bindgen

import "go/types"

// PackageModel is the in-memory representation of a Go package's exported API.
type PackageModel struct {
	ImportPath string
	Name       string // short package name (e.g., "json")
	Functions  []FunctionModel
	Constants  []ConstantModel
}

// FunctionModel represents an exported function.
type FunctionModel struct {
	Name       string
	Params     []ParamModel
	Results    []ParamModel
	Variadic   bool
	ReturnsErr bool // true if last result is error
}

// ParamModel represents a function parameter or result.
type ParamModel struct {
	Name    string
	GoType  types.Type
	TypeStr string // human-readable type string (e.g., "string", "[]byte")
}

// ConstKind classifies a constant for value construction.
type ConstKind int

const (
	ConstString ConstKind = iota
	ConstInt
	ConstFloat
	ConstBool
)

// ConstantModel represents an exported constant of a representable kind.
type ConstantModel struct {
	Name  string
	Kind  ConstKind
	Value string // Go literal for the value
}
