package server

import (
	"bytes"
	"context"
	"fmt"

	"connectrpc.com/connect"

	"github.com/chazu/monty/vm"
)

// execService implements the exec RPC surface: running program images,
// disassembling them, and managing workspace sessions.
type execService struct {
	worker   *VMWorker
	sessions *SessionStore
}

// Run decodes a program image and executes it on the VM goroutine.
// Program failures come back in the response body; only a malformed
// request or a VM panic produces an RPC error.
func (s *execService) Run(ctx context.Context, req *connect.Request[RunRequest]) (*connect.Response[RunResponse], error) {
	msg := req.Msg
	if len(msg.Image) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("empty program image"))
	}
	module, code, err := vm.DecodeProgram(msg.Image)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	var globals *vm.Module
	if msg.SessionID != "" {
		session, ok := s.sessions.Get(msg.SessionID)
		if !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("unknown session %q", msg.SessionID))
		}
		globals = session.Globals
	} else {
		globals = vm.NewModule("__main__")
	}

	resp := &RunResponse{Module: module}
	if _, err := s.worker.Do(func(m *vm.VM) (any, error) {
		runImage(m, code, globals, msg.Main, resp)
		return nil, nil
	}); err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(resp), nil
}

// runImage executes a decoded program against the given globals,
// capturing everything it prints. Runs on the VM goroutine.
func runImage(m *vm.VM, code *vm.Code, globals *vm.Module, main string, resp *RunResponse) {
	var buf bytes.Buffer
	prev := m.Stdout()
	m.SetStdout(&buf)
	defer func() {
		m.SetStdout(prev)
		resp.Output = buf.String()
	}()

	_, err := m.RunCode(code, globals)
	if err == nil && main != "" {
		fn, ok := globals.Get(main)
		if !ok {
			err = vm.NewNameError(fmt.Sprintf("name '%s' is not defined", main))
		} else {
			var v vm.Value
			v, err = m.Call(fn)
			if err == nil {
				resp.Result = v.Repr()
			}
		}
	}
	if err != nil {
		exc := vm.AsException(err)
		resp.ErrorMessage = exc.Error()
		resp.Traceback = exc.FormatTraceback()
		return
	}
	resp.Success = true
}

// Disassemble returns a bytecode listing for a program image without
// executing it.
func (s *execService) Disassemble(ctx context.Context, req *connect.Request[DisassembleRequest]) (*connect.Response[DisassembleResponse], error) {
	if len(req.Msg.Image) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("empty program image"))
	}
	module, code, err := vm.DecodeProgram(req.Msg.Image)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewResponse(&DisassembleResponse{
		Module:  module,
		Listing: vm.DisassembleAll(code),
	}), nil
}

// CreateSession opens a new workspace session.
func (s *execService) CreateSession(ctx context.Context, req *connect.Request[CreateSessionRequest]) (*connect.Response[CreateSessionResponse], error) {
	session := s.sessions.Create(req.Msg.Name)
	log.Debugf("created session %s", session.ID)
	return connect.NewResponse(&CreateSessionResponse{SessionID: session.ID}), nil
}

// CloseSession destroys a session and its globals.
func (s *execService) CloseSession(ctx context.Context, req *connect.Request[CloseSessionRequest]) (*connect.Response[CloseSessionResponse], error) {
	closed := s.sessions.Destroy(req.Msg.SessionID)
	if closed {
		log.Debugf("closed session %s", req.Msg.SessionID)
	}
	return connect.NewResponse(&CloseSessionResponse{Closed: closed}), nil
}

// ListModules reports the names of the modules the VM has loaded.
func (s *execService) ListModules(ctx context.Context, req *connect.Request[ListModulesRequest]) (*connect.Response[ListModulesResponse], error) {
	names, err := s.worker.Do(func(m *vm.VM) (any, error) {
		return m.Modules().Names(), nil
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&ListModulesResponse{Modules: names.([]string)}), nil
}
