package vm

import (
	"fmt"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Exception objects
// ---------------------------------------------------------------------------

// TraceEntry records one frame the exception unwound through.
type TraceEntry struct {
	Function string // qualified name of the code object
	Offset   int    // instruction offset of the raising or calling opcode
}

// ExceptionObject is a raised exception travelling through the unwind
// machinery. Cause is the explicit "raise X from Y" link; Context the
// implicit exception-during-handling link. SuppressContext hides the
// context when a cause was given explicitly.
type ExceptionObject struct {
	TypeName        string
	Message         string
	Args            []Value
	Trace           []TraceEntry
	Cause           *ExceptionObject
	Context         *ExceptionObject
	SuppressContext bool
	Notes           []string
}

// NewException creates an exception of the named type.
func NewException(typeName, message string) *ExceptionObject {
	e := &ExceptionObject{TypeName: typeName, Message: message}
	if message != "" {
		e.Args = []Value{MakeStr(message)}
	}
	return e
}

// Error implements the error interface, so exceptions travel through
// ordinary Go error returns.
func (e *ExceptionObject) Error() string {
	if e.Message == "" {
		return e.TypeName
	}
	return e.TypeName + ": " + e.Message
}

// WithCause attaches an explicit cause and suppresses the implicit
// context, mirroring "raise X from Y".
func (e *ExceptionObject) WithCause(cause *ExceptionObject) *ExceptionObject {
	e.Cause = cause
	e.SuppressContext = true
	return e
}

// SetContext records the exception that was being handled when this one
// was raised. An existing context is never overwritten, and self-links
// are ignored.
func (e *ExceptionObject) SetContext(ctx *ExceptionObject) {
	if e.Context == nil && ctx != e {
		e.Context = ctx
	}
}

// AddNote appends a note shown beneath the rendered exception.
func (e *ExceptionObject) AddNote(note string) {
	e.Notes = append(e.Notes, note)
}

// PushTrace appends a traceback entry. Entries accumulate outward, so
// the innermost frame is first.
func (e *ExceptionObject) PushTrace(function string, offset int) {
	e.Trace = append(e.Trace, TraceEntry{Function: function, Offset: offset})
}

// Typed constructors for the exception types raised by the engine itself.

// NewTypeError creates a TypeError.
func NewTypeError(message string) *ExceptionObject { return NewException("TypeError", message) }

// NewValueError creates a ValueError.
func NewValueError(message string) *ExceptionObject { return NewException("ValueError", message) }

// NewNameError creates a NameError.
func NewNameError(message string) *ExceptionObject { return NewException("NameError", message) }

// NewAttributeError creates an AttributeError.
func NewAttributeError(message string) *ExceptionObject {
	return NewException("AttributeError", message)
}

// NewIndexError creates an IndexError.
func NewIndexError(message string) *ExceptionObject { return NewException("IndexError", message) }

// NewKeyError creates a KeyError.
func NewKeyError(message string) *ExceptionObject { return NewException("KeyError", message) }

// NewRuntimeError creates a RuntimeError.
func NewRuntimeError(message string) *ExceptionObject { return NewException("RuntimeError", message) }

// NewZeroDivisionError creates a ZeroDivisionError.
func NewZeroDivisionError(message string) *ExceptionObject {
	return NewException("ZeroDivisionError", message)
}

// NewStopIteration creates a StopIteration carrying the generator's
// return value.
func NewStopIteration(value Value) *ExceptionObject {
	e := NewException("StopIteration", "")
	if !value.IsNone() {
		e.Args = []Value{value}
		e.Message = value.Display()
	}
	return e
}

// NewImportError creates an ImportError.
func NewImportError(message string) *ExceptionObject { return NewException("ImportError", message) }

// NewRecursionError creates a RecursionError.
func NewRecursionError() *ExceptionObject {
	return NewException("RecursionError", "maximum recursion depth exceeded")
}

// AsException converts an error into an exception object. Errors that
// already are exceptions pass through; anything else becomes a
// RuntimeError.
func AsException(err error) *ExceptionObject {
	if e, ok := err.(*ExceptionObject); ok {
		return e
	}
	return NewRuntimeError(err.Error())
}

// ---------------------------------------------------------------------------
// Exception hierarchy
// ---------------------------------------------------------------------------

// builtinExcParents is the fixed parent table for the builtin exception
// types. Every type not listed under another parent derives directly
// from Exception; only SystemExit, KeyboardInterrupt, and GeneratorExit
// sit directly under BaseException.
var builtinExcParents = map[string]string{
	"Exception":         "BaseException",
	"SystemExit":        "BaseException",
	"KeyboardInterrupt": "BaseException",
	"GeneratorExit":     "BaseException",

	"ArithmeticError":    "Exception",
	"AssertionError":     "Exception",
	"AttributeError":     "Exception",
	"BufferError":        "Exception",
	"EOFError":           "Exception",
	"ImportError":        "Exception",
	"LookupError":        "Exception",
	"MemoryError":        "Exception",
	"NameError":          "Exception",
	"OSError":            "Exception",
	"ReferenceError":     "Exception",
	"RuntimeError":       "Exception",
	"StopIteration":      "Exception",
	"StopAsyncIteration": "Exception",
	"SyntaxError":        "Exception",
	"SystemError":        "Exception",
	"TypeError":          "Exception",
	"ValueError":         "Exception",
	"Warning":            "Exception",

	"ZeroDivisionError":  "ArithmeticError",
	"OverflowError":      "ArithmeticError",
	"FloatingPointError": "ArithmeticError",

	"IndexError": "LookupError",
	"KeyError":   "LookupError",

	"ModuleNotFoundError": "ImportError",
	"UnboundLocalError":   "NameError",

	"IOError":                "OSError",
	"EnvironmentError":       "OSError",
	"FileNotFoundError":      "OSError",
	"FileExistsError":        "OSError",
	"PermissionError":        "OSError",
	"IsADirectoryError":      "OSError",
	"NotADirectoryError":     "OSError",
	"InterruptedError":       "OSError",
	"BlockingIOError":        "OSError",
	"ChildProcessError":      "OSError",
	"ProcessLookupError":     "OSError",
	"TimeoutError":           "OSError",
	"ConnectionError":        "OSError",
	"BrokenPipeError":        "ConnectionError",
	"ConnectionAbortedError": "ConnectionError",
	"ConnectionRefusedError": "ConnectionError",
	"ConnectionResetError":   "ConnectionError",

	"UnicodeError":          "ValueError",
	"UnicodeDecodeError":    "UnicodeError",
	"UnicodeEncodeError":    "UnicodeError",
	"UnicodeTranslateError": "UnicodeError",

	"IndentationError": "SyntaxError",
	"TabError":         "IndentationError",

	"RecursionError":      "RuntimeError",
	"NotImplementedError": "RuntimeError",

	"DeprecationWarning": "Warning",
	"UserWarning":        "Warning",
	"RuntimeWarning":     "Warning",
	"FutureWarning":      "Warning",
}

// ExcHierarchy resolves exception type names against the builtin parent
// table plus user classes registered at class-creation time.
type ExcHierarchy struct {
	mu      sync.RWMutex
	parents map[string]string
}

// NewExcHierarchy creates a hierarchy seeded with the builtin table.
func NewExcHierarchy() *ExcHierarchy {
	parents := make(map[string]string, len(builtinExcParents))
	for child, parent := range builtinExcParents {
		parents[child] = parent
	}
	return &ExcHierarchy{parents: parents}
}

// Register records a user exception class under its parent.
func (h *ExcHierarchy) Register(child, parent string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.parents[child]; !exists {
		h.parents[child] = parent
	}
}

// IsExceptionType reports whether name is a registered exception type.
func (h *ExcHierarchy) IsExceptionType(name string) bool {
	if name == "BaseException" {
		return true
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.parents[name]
	return ok
}

// Matches reports whether an exception of type typeName is caught by a
// handler for want, walking the parent chain.
func (h *ExcHierarchy) Matches(typeName, want string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for name := typeName; name != ""; name = h.parents[name] {
		if name == want {
			return true
		}
		if name == "BaseException" {
			break
		}
	}
	return false
}

// BuiltinExceptionNames returns every builtin exception type name,
// including the root.
func BuiltinExceptionNames() []string {
	names := make([]string, 0, len(builtinExcParents)+1)
	names = append(names, "BaseException")
	for name := range builtinExcParents {
		names = append(names, name)
	}
	return names
}

// ---------------------------------------------------------------------------
// Traceback rendering
// ---------------------------------------------------------------------------

// FormatTraceback renders the exception with its chain, oldest first,
// joined by the standard chaining sentences.
func (e *ExceptionObject) FormatTraceback() string {
	var sb strings.Builder
	e.formatChain(&sb, make(map[*ExceptionObject]bool))
	return sb.String()
}

func (e *ExceptionObject) formatChain(sb *strings.Builder, seen map[*ExceptionObject]bool) {
	if seen[e] {
		return
	}
	seen[e] = true

	if e.Cause != nil {
		e.Cause.formatChain(sb, seen)
		sb.WriteString("\nThe above exception was the direct cause of the following exception:\n\n")
	} else if e.Context != nil && !e.SuppressContext {
		e.Context.formatChain(sb, seen)
		sb.WriteString("\nDuring handling of the above exception, another exception occurred:\n\n")
	}

	sb.WriteString("Traceback (most recent call last):\n")
	// Entries accumulate innermost first; render outermost first.
	for i := len(e.Trace) - 1; i >= 0; i-- {
		entry := e.Trace[i]
		fmt.Fprintf(sb, "  File \"<bytecode>\", offset %d, in %s\n", entry.Offset, entry.Function)
	}
	sb.WriteString(e.Error())
	sb.WriteByte('\n')
	for _, note := range e.Notes {
		sb.WriteString(note)
		sb.WriteByte('\n')
	}
}
