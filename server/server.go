// Package server exposes a running VM over Connect RPC: clients submit
// compiled program images for execution, disassemble them, and keep
// per-session global namespaces alive between runs.
package server

import (
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/monty/vm"
)

var log = commonlog.GetLogger("server")

// Procedure paths for the exec service.
const (
	RunProcedure           = "/monty.v1.ExecService/Run"
	DisassembleProcedure   = "/monty.v1.ExecService/Disassemble"
	CreateSessionProcedure = "/monty.v1.ExecService/CreateSession"
	CloseSessionProcedure  = "/monty.v1.ExecService/CloseSession"
	ListModulesProcedure   = "/monty.v1.ExecService/ListModules"
)

// Server is the execution server wrapping a running VM.
type Server struct {
	worker   *VMWorker
	sessions *SessionStore
	mux      *http.ServeMux

	stopSweeper func()
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	sweepInterval time.Duration
	sessionTTL    time.Duration
}

// WithSessionTTL sets how often idle sessions are swept and how long a
// session may sit unused before it is destroyed.
func WithSessionTTL(interval, ttl time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.sweepInterval = interval
		c.sessionTTL = ttl
	}
}

// New creates a Server wrapping the given VM.
func New(v *vm.VM, opts ...ServerOption) *Server {
	cfg := &serverConfig{
		sweepInterval: 5 * time.Minute,
		sessionTTL:    30 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	worker := NewVMWorker(v)
	sessions := NewSessionStore()

	s := &Server{
		worker:   worker,
		sessions: sessions,
		mux:      http.NewServeMux(),
	}

	svc := &execService{worker: worker, sessions: sessions}
	codec := connect.WithCodec(jsonCodec{})

	s.mux.Handle(RunProcedure, connect.NewUnaryHandler(RunProcedure, svc.Run, codec))
	s.mux.Handle(DisassembleProcedure, connect.NewUnaryHandler(DisassembleProcedure, svc.Disassemble, codec))
	s.mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, svc.CreateSession, codec))
	s.mux.Handle(CloseSessionProcedure, connect.NewUnaryHandler(CloseSessionProcedure, svc.CloseSession, codec))
	s.mux.Handle(ListModulesProcedure, connect.NewUnaryHandler(ListModulesProcedure, svc.ListModules, codec))

	s.stopSweeper = sessions.StartSweeper(cfg.sweepInterval, cfg.sessionTTL)

	return s
}

// Handler returns the HTTP handler serving all procedures.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server on the given address, in the
// form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	log.Noticef("exec server listening on %s", addr)
	return http.ListenAndServe(addr, s.mux)
}

// Stop shuts down the sweeper and the VM worker.
func (s *Server) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.worker.Stop()
}
