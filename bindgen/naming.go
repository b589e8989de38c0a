package bindgen

import (
	"strings"
	"unicode"
)

// SnakeCase converts a Go PascalCase name to snake_case, keeping acronym
// runs together.
// e.g., "ReadAll" → "read_all", "ParseURL" → "parse_url",
// "HTTPServer" → "http_server"
func SnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && !unicode.IsUpper(runes[i-1]) && runes[i-1] != '_'
			// An upper rune followed by a lower one ends an acronym run.
			runEnd := i > 0 && unicode.IsUpper(runes[i-1]) &&
				i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || runEnd {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PackagePrefix derives the builtin name prefix from an import path.
// e.g., "strings" → "strings", "encoding/json" → "json",
// "github.com/foo/go-bar" → "go_bar"
func PackagePrefix(importPath string) string {
	parts := strings.Split(importPath, "/")
	last := parts[len(parts)-1]
	var b strings.Builder
	for _, r := range last {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// BuiltinName joins a package prefix and a function name into the
// registered builtin name.
// e.g., ("json", "Marshal") → "json_marshal"
func BuiltinName(prefix, fnName string) string {
	return prefix + "_" + SnakeCase(fnName)
}

// RegisterFuncName names the generated registration function.
// e.g., "json" → "RegisterJson", "go_bar" → "RegisterGoBar"
func RegisterFuncName(prefix string) string {
	return "Register" + toPascal(prefix)
}

// toPascal converts a string to PascalCase.
// Handles hyphenated and underscore-separated names.
func toPascal(s string) string {
	if len(s) == 0 {
		return s
	}

	var b strings.Builder
	nextUpper := true
	for _, r := range s {
		if r == '-' || r == '_' {
			nextUpper = true
			continue
		}
		if nextUpper {
			b.WriteRune(unicode.ToUpper(r))
			nextUpper = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
