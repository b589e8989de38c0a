package bindgen

import (
	"fmt"
	"go/format"
	"strings"
)

// paramSpec describes how one Go parameter is checked and converted from
// a VM value in the generated wrapper.
type paramSpec struct {
	kinds   []string // acceptable vm.Kind names
	convert string   // expression template, %s is the args[i] accessor
	display string   // type name used in TypeError messages
}

var paramSpecs = map[string]paramSpec{
	"string": {kinds: []string{"vm.KindStr"}, convert: "%s.Str()", display: "str"},
	"[]byte": {kinds: []string{"vm.KindStr"}, convert: "[]byte(%s.Str())", display: "str"},
	"bool":   {kinds: []string{"vm.KindBool"}, convert: "%s.Bool()", display: "bool"},
	"int":    {kinds: []string{"vm.KindInt"}, convert: "int(%s.Int())", display: "int"},
	"int8":   {kinds: []string{"vm.KindInt"}, convert: "int8(%s.Int())", display: "int"},
	"int16":  {kinds: []string{"vm.KindInt"}, convert: "int16(%s.Int())", display: "int"},
	"int32":  {kinds: []string{"vm.KindInt"}, convert: "int32(%s.Int())", display: "int"},
	"int64":  {kinds: []string{"vm.KindInt"}, convert: "%s.Int()", display: "int"},
	"uint":   {kinds: []string{"vm.KindInt"}, convert: "uint(%s.Int())", display: "int"},
	"uint8":  {kinds: []string{"vm.KindInt"}, convert: "uint8(%s.Int())", display: "int"},
	"uint16": {kinds: []string{"vm.KindInt"}, convert: "uint16(%s.Int())", display: "int"},
	"uint32": {kinds: []string{"vm.KindInt"}, convert: "uint32(%s.Int())", display: "int"},
	"rune":   {kinds: []string{"vm.KindInt"}, convert: "rune(%s.Int())", display: "int"},
	"byte":   {kinds: []string{"vm.KindInt"}, convert: "byte(%s.Int())", display: "int"},
	"float64": {kinds: []string{"vm.KindInt", "vm.KindFloat"},
		convert: "%s.Float()", display: "number"},
	"float32": {kinds: []string{"vm.KindInt", "vm.KindFloat"},
		convert: "float32(%s.Float())", display: "number"},
}

// resultWraps maps a Go result type to the vm constructor template.
var resultWraps = map[string]string{
	"string":  "vm.MakeStr(%s)",
	"[]byte":  "vm.MakeStr(string(%s))",
	"bool":    "vm.MakeBool(%s)",
	"int":     "vm.MakeInt(int64(%s))",
	"int8":    "vm.MakeInt(int64(%s))",
	"int16":   "vm.MakeInt(int64(%s))",
	"int32":   "vm.MakeInt(int64(%s))",
	"int64":   "vm.MakeInt(%s)",
	"uint":    "vm.MakeInt(int64(%s))",
	"uint8":   "vm.MakeInt(int64(%s))",
	"uint16":  "vm.MakeInt(int64(%s))",
	"uint32":  "vm.MakeInt(int64(%s))",
	"rune":    "vm.MakeInt(int64(%s))",
	"byte":    "vm.MakeInt(int64(%s))",
	"float64": "vm.MakeFloat(%s)",
	"float32": "vm.MakeFloat(float64(%s))",
}

// unsupportedReason explains why a function cannot be wrapped, or "" when
// it can.
func unsupportedReason(fn FunctionModel) string {
	if fn.Variadic {
		return "variadic"
	}
	for i, p := range fn.Params {
		if _, ok := paramSpecs[p.TypeStr]; !ok {
			return fmt.Sprintf("parameter %d type %s", i+1, p.TypeStr)
		}
	}
	results := fn.Results
	if fn.ReturnsErr {
		results = results[:len(results)-1]
	}
	for i, r := range results {
		if _, ok := resultWraps[r.TypeStr]; !ok {
			return fmt.Sprintf("result %d type %s", i+1, r.TypeStr)
		}
	}
	return ""
}

// GenerateBindings renders Go source registering the package's supported
// functions and constants as VM builtins. Functions whose signatures the
// value system cannot represent are listed in a trailing comment.
func GenerateBindings(model *PackageModel) (string, error) {
	prefix := PackagePrefix(model.ImportPath)
	registerFn := RegisterFuncName(prefix)

	var wrapped []FunctionModel
	var skipped []string
	for _, fn := range model.Functions {
		if reason := unsupportedReason(fn); reason != "" {
			skipped = append(skipped, fmt.Sprintf("%s: %s", fn.Name, reason))
		} else {
			wrapped = append(wrapped, fn)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "// Code generated by monty bindgen from %q. DO NOT EDIT.\n\n", model.ImportPath)
	fmt.Fprintf(&b, "package bind_%s\n\n", prefix)

	b.WriteString("import (\n")
	if len(wrapped) > 0 {
		b.WriteString("\t\"fmt\"\n\n")
		fmt.Fprintf(&b, "\tpkg %q\n\n", model.ImportPath)
	}
	b.WriteString("\t\"github.com/chazu/monty/vm\"\n")
	b.WriteString(")\n\n")

	fmt.Fprintf(&b, "// %s installs the %s bindings into a builtin registry.\n", registerFn, model.ImportPath)
	fmt.Fprintf(&b, "func %s(reg *vm.Builtins) {\n", registerFn)
	for _, c := range model.Constants {
		name := BuiltinName(prefix, c.Name)
		switch c.Kind {
		case ConstString:
			fmt.Fprintf(&b, "\treg.Set(%q, vm.MakeStr(%s))\n", name, c.Value)
		case ConstInt:
			fmt.Fprintf(&b, "\treg.Set(%q, vm.MakeInt(%s))\n", name, c.Value)
		case ConstFloat:
			fmt.Fprintf(&b, "\treg.Set(%q, vm.MakeFloat(%s))\n", name, c.Value)
		case ConstBool:
			fmt.Fprintf(&b, "\treg.Set(%q, vm.MakeBool(%s))\n", name, c.Value)
		}
	}
	for _, fn := range wrapped {
		writeWrapper(&b, prefix, fn)
	}
	b.WriteString("}\n")

	if len(skipped) > 0 {
		b.WriteString("\n// Not wrapped (unsupported signatures):\n")
		for _, s := range skipped {
			fmt.Fprintf(&b, "//   %s\n", s)
		}
	}

	formatted, err := format.Source([]byte(b.String()))
	if err != nil {
		return "", fmt.Errorf("formatting generated code: %w", err)
	}
	return string(formatted), nil
}

func writeWrapper(b *strings.Builder, prefix string, fn FunctionModel) {
	name := BuiltinName(prefix, fn.Name)

	fmt.Fprintf(b, "\treg.Set(%q, vm.MakeBuiltin(vm.NewBuiltin(%q, func(args []vm.Value) (vm.Value, error) {\n", name, name)

	fmt.Fprintf(b, "\t\tif len(args) != %d {\n", len(fn.Params))
	fmt.Fprintf(b, "\t\t\treturn vm.None, vm.NewTypeError(fmt.Sprintf(\"%s() takes %d arguments but %%d were given\", len(args)))\n", name, len(fn.Params))
	b.WriteString("\t\t}\n")

	// Check and convert each argument.
	var argNames []string
	for i, p := range fn.Params {
		spec := paramSpecs[p.TypeStr]
		arg := fmt.Sprintf("args[%d]", i)
		cond := make([]string, len(spec.kinds))
		for j, k := range spec.kinds {
			cond[j] = fmt.Sprintf("%s.Kind() != %s", arg, k)
		}
		fmt.Fprintf(b, "\t\tif %s {\n", strings.Join(cond, " && "))
		fmt.Fprintf(b, "\t\t\treturn vm.None, vm.NewTypeError(\"%s() argument %d must be %s\")\n", name, i+1, spec.display)
		b.WriteString("\t\t}\n")
		an := fmt.Sprintf("a%d", i)
		fmt.Fprintf(b, "\t\t%s := %s\n", an, fmt.Sprintf(spec.convert, arg))
		argNames = append(argNames, an)
	}

	// Call and wrap the results.
	results := fn.Results
	if fn.ReturnsErr {
		results = results[:len(results)-1]
	}
	call := fmt.Sprintf("pkg.%s(%s)", fn.Name, strings.Join(argNames, ", "))

	var resNames []string
	for i := range results {
		resNames = append(resNames, fmt.Sprintf("r%d", i))
	}

	switch {
	case fn.ReturnsErr && len(results) > 0:
		fmt.Fprintf(b, "\t\t%s, err := %s\n", strings.Join(resNames, ", "), call)
		b.WriteString("\t\tif err != nil {\n")
		b.WriteString("\t\t\treturn vm.None, vm.NewRuntimeError(err.Error())\n")
		b.WriteString("\t\t}\n")
	case fn.ReturnsErr:
		fmt.Fprintf(b, "\t\tif err := %s; err != nil {\n", call)
		b.WriteString("\t\t\treturn vm.None, vm.NewRuntimeError(err.Error())\n")
		b.WriteString("\t\t}\n")
	case len(results) > 0:
		fmt.Fprintf(b, "\t\t%s := %s\n", strings.Join(resNames, ", "), call)
	default:
		fmt.Fprintf(b, "\t\t%s\n", call)
	}

	switch len(results) {
	case 0:
		b.WriteString("\t\treturn vm.None, nil\n")
	case 1:
		wrap := fmt.Sprintf(resultWraps[results[0].TypeStr], resNames[0])
		fmt.Fprintf(b, "\t\treturn %s, nil\n", wrap)
	default:
		items := make([]string, len(results))
		for i, r := range results {
			items[i] = fmt.Sprintf(resultWraps[r.TypeStr], resNames[i])
		}
		fmt.Fprintf(b, "\t\treturn vm.MakeTuple(vm.NewTuple([]vm.Value{%s})), nil\n", strings.Join(items, ", "))
	}

	b.WriteString("\t})))\n")
}
