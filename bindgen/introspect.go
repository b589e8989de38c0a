package bindgen

import (
	"fmt"
	"go/constant"
	"go/types"
	"strconv"

	"golang.org/x/tools/go/packages"
)

// IntrospectPackage loads a Go package by import path and returns its API
// model. The includeFilter, if non-nil, restricts which exported names are
// included.
//
// Only functions and constants are modeled: the VM's value system has no
// foreign-object kind, so exported types and their methods are not
// representable as builtins.
func IntrospectPackage(importPath string, includeFilter map[string]bool) (*PackageModel, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedTypes | packages.NeedSyntax,
	}

	pkgs, err := packages.Load(cfg, importPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", importPath, err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found for %s", importPath)
	}
	if len(pkgs[0].Errors) > 0 {
		return nil, fmt.Errorf("package errors: %v", pkgs[0].Errors)
	}

	pkg := pkgs[0]
	if pkg.Types == nil {
		return nil, fmt.Errorf("type information not available for %s", importPath)
	}

	model := &PackageModel{
		ImportPath: importPath,
		Name:       pkg.Name,
	}

	scope := pkg.Types.Scope()

	for _, name := range scope.Names() {
		if includeFilter != nil && !includeFilter[name] {
			continue
		}

		obj := scope.Lookup(name)
		if !obj.Exported() {
			continue
		}

		switch o := obj.(type) {
		case *types.Func:
			model.Functions = append(model.Functions, extractFunction(o))

		case *types.Const:
			if cm, ok := extractConstant(o); ok {
				model.Constants = append(model.Constants, cm)
			}
		}
	}

	return model, nil
}

func extractFunction(fn *types.Func) FunctionModel {
	sig := fn.Type().(*types.Signature)
	fm := FunctionModel{Name: fn.Name(), Variadic: sig.Variadic()}

	params := sig.Params()
	for i := 0; i < params.Len(); i++ {
		p := params.At(i)
		fm.Params = append(fm.Params, ParamModel{
			Name:    p.Name(),
			GoType:  p.Type(),
			TypeStr: p.Type().String(),
		})
	}

	results := sig.Results()
	for i := 0; i < results.Len(); i++ {
		r := results.At(i)
		fm.Results = append(fm.Results, ParamModel{
			Name:    r.Name(),
			GoType:  r.Type(),
			TypeStr: r.Type().String(),
		})
	}

	// Check if last result is error
	if results.Len() > 0 {
		if isErrorType(results.At(results.Len() - 1).Type()) {
			fm.ReturnsErr = true
		}
	}

	return fm
}

// extractConstant models a constant if its kind maps onto a VM value.
// Complex and unknown kinds are dropped.
func extractConstant(c *types.Const) (ConstantModel, bool) {
	val := c.Val()
	switch val.Kind() {
	case constant.String:
		return ConstantModel{
			Name:  c.Name(),
			Kind:  ConstString,
			Value: strconv.Quote(constant.StringVal(val)),
		}, true
	case constant.Int:
		i, ok := constant.Int64Val(val)
		if !ok {
			return ConstantModel{}, false
		}
		return ConstantModel{
			Name:  c.Name(),
			Kind:  ConstInt,
			Value: strconv.FormatInt(i, 10),
		}, true
	case constant.Float:
		f, _ := constant.Float64Val(val)
		return ConstantModel{
			Name:  c.Name(),
			Kind:  ConstFloat,
			Value: strconv.FormatFloat(f, 'g', -1, 64),
		}, true
	case constant.Bool:
		return ConstantModel{
			Name:  c.Name(),
			Kind:  ConstBool,
			Value: strconv.FormatBool(constant.BoolVal(val)),
		}, true
	}
	return ConstantModel{}, false
}

func isErrorType(t types.Type) bool {
	iface, ok := t.Underlying().(*types.Interface)
	if !ok {
		if named, ok := t.(*types.Named); ok {
			return named.Obj().Name() == "error" && named.Obj().Pkg() == nil
		}
		return false
	}
	// error interface has a single method Error() string
	if iface.NumMethods() == 1 {
		return iface.Method(0).Name() == "Error"
	}
	return false
}
