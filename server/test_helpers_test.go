package server

import (
	"context"
	"os"
	"testing"

	"connectrpc.com/connect"

	"github.com/chazu/monty/vm"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
//
// The VM is cheap but the worker goroutine is shared state, so tests run
// against one instance created in TestMain. Tests that mutate module-level
// state should use session globals or build an isolated environment.
// ---------------------------------------------------------------------------

var (
	testVM       *vm.VM
	testWorker   *VMWorker
	testSessions *SessionStore
)

func TestMain(m *testing.M) {
	testVM = vm.NewVM()
	testWorker = NewVMWorker(testVM)
	testSessions = NewSessionStore()

	code := m.Run()

	testWorker.Stop()
	os.Exit(code)
}

// newTestExecService creates an execService backed by the shared VM.
func newTestExecService() *execService {
	return &execService{worker: testWorker, sessions: testSessions}
}

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func bg() context.Context {
	return context.Background()
}

func asConnectError(err error, target **connect.Error) bool {
	if ce, ok := err.(*connect.Error); ok {
		*target = ce
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Program image builders
// ---------------------------------------------------------------------------

func encodeImage(t *testing.T, module string, code *vm.Code) []byte {
	t.Helper()
	image, err := vm.EncodeProgram(module, code)
	if err != nil {
		t.Fatalf("EncodeProgram: %v", err)
	}
	return image
}

// helloImage prints "hello" and binds answer = 42.
func helloImage(t *testing.T) []byte {
	b := vm.NewBytecodeBuilder()
	b.EmitUint16(vm.OpLoadName, 0)
	b.EmitUint16(vm.OpLoadConst, 0)
	b.EmitByte(vm.OpCall, 1)
	b.Emit(vm.OpPop)
	b.EmitUint16(vm.OpLoadConst, 1)
	b.EmitUint16(vm.OpStoreName, 1)
	b.EmitUint16(vm.OpLoadConst, 2)
	b.Emit(vm.OpReturn)
	return encodeImage(t, "hello", &vm.Code{
		Name:      "hello",
		QualName:  "hello",
		Bytecode:  b.Bytes(),
		Constants: []vm.Value{vm.MakeStr("hello"), vm.MakeInt(42), vm.None},
		Names:     []string{"print", "answer"},
	})
}

// mainImage defines a function main that returns 7.
func mainImage(t *testing.T) []byte {
	fb := vm.NewBytecodeBuilder()
	fb.EmitUint16(vm.OpLoadConst, 0)
	fb.Emit(vm.OpReturn)
	fn := &vm.Code{
		Name:      "main",
		QualName:  "main",
		Bytecode:  fb.Bytes(),
		Constants: []vm.Value{vm.MakeInt(7)},
	}

	b := vm.NewBytecodeBuilder()
	b.EmitUint16(vm.OpLoadConst, 0)
	b.EmitUint16(vm.OpLoadConst, 1)
	b.EmitByte(vm.OpMakeFunction, 0)
	b.EmitUint16(vm.OpStoreName, 0)
	b.EmitUint16(vm.OpLoadConst, 2)
	b.Emit(vm.OpReturn)
	return encodeImage(t, "job", &vm.Code{
		Name:      "job",
		QualName:  "job",
		Bytecode:  b.Bytes(),
		Constants: []vm.Value{vm.MakeStr("main"), vm.MakeCode(fn), vm.None},
		Names:     []string{"main"},
	})
}

// divideImage divides 1 by 0 at the top level.
func divideImage(t *testing.T) []byte {
	b := vm.NewBytecodeBuilder()
	b.EmitUint16(vm.OpLoadConst, 0)
	b.EmitUint16(vm.OpLoadConst, 1)
	b.Emit(vm.OpBinaryDiv)
	b.Emit(vm.OpPop)
	b.EmitUint16(vm.OpLoadConst, 2)
	b.Emit(vm.OpReturn)
	return encodeImage(t, "boom", &vm.Code{
		Name:      "boom",
		QualName:  "boom",
		Bytecode:  b.Bytes(),
		Constants: []vm.Value{vm.MakeInt(1), vm.MakeInt(0), vm.None},
	})
}

// storeImage binds x = 5.
func storeImage(t *testing.T) []byte {
	b := vm.NewBytecodeBuilder()
	b.EmitUint16(vm.OpLoadConst, 0)
	b.EmitUint16(vm.OpStoreName, 0)
	b.EmitUint16(vm.OpLoadConst, 1)
	b.Emit(vm.OpReturn)
	return encodeImage(t, "setx", &vm.Code{
		Name:      "setx",
		QualName:  "setx",
		Bytecode:  b.Bytes(),
		Constants: []vm.Value{vm.MakeInt(5), vm.None},
		Names:     []string{"x"},
	})
}

// printXImage prints the global x.
func printXImage(t *testing.T) []byte {
	b := vm.NewBytecodeBuilder()
	b.EmitUint16(vm.OpLoadName, 0)
	b.EmitUint16(vm.OpLoadName, 1)
	b.EmitByte(vm.OpCall, 1)
	b.Emit(vm.OpPop)
	b.EmitUint16(vm.OpLoadConst, 0)
	b.Emit(vm.OpReturn)
	return encodeImage(t, "getx", &vm.Code{
		Name:      "getx",
		QualName:  "getx",
		Bytecode:  b.Bytes(),
		Constants: []vm.Value{vm.None},
		Names:     []string{"print", "x"},
	})
}
