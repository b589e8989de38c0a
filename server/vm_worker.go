package server

import (
	"fmt"

	"github.com/chazu/monty/vm"
)

// vmRequest represents a unit of work to be executed on the VM goroutine.
type vmRequest struct {
	fn   func(*vm.VM) (any, error)
	done chan vmResult
}

// vmResult holds the return value from a VM operation.
type vmResult struct {
	value any
	err   error
}

// VMWorker serializes all VM access through a single goroutine.
// The interpreter is single-threaded; all request handlers must go
// through the worker to avoid data races.
type VMWorker struct {
	vm       *vm.VM
	requests chan vmRequest
	quit     chan struct{}
}

// NewVMWorker creates a VMWorker and starts the processing goroutine.
func NewVMWorker(v *vm.VM) *VMWorker {
	w := &VMWorker{
		vm:       v,
		requests: make(chan vmRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes VM requests sequentially on a dedicated goroutine.
func (w *VMWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the VM, recovering from panics so a bad
// program cannot take down the server.
func (w *VMWorker) execute(fn func(*vm.VM) (any, error)) (result vmResult) {
	defer func() {
		if r := recover(); r != nil {
			result = vmResult{err: fmt.Errorf("vm panic: %v", r)}
		}
	}()
	result.value, result.err = fn(w.vm)
	return result
}

// Do submits a function for execution on the VM goroutine and blocks
// until it completes. Returns an error if the worker has been stopped.
func (w *VMWorker) Do(fn func(*vm.VM) (any, error)) (any, error) {
	req := vmRequest{
		fn:   fn,
		done: make(chan vmResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, fmt.Errorf("vm worker stopped")
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, fmt.Errorf("vm worker stopped")
	}
}

// Stop shuts down the worker goroutine.
func (w *VMWorker) Stop() {
	close(w.quit)
}

// VM returns the underlying VM for access that does not touch
// interpreter state.
func (w *VMWorker) VM() *vm.VM {
	return w.vm
}
