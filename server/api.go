package server

// Request and response messages for the exec service. These travel as
// JSON over Connect unary calls.

// RunRequest asks the server to execute a compiled program image.
type RunRequest struct {
	// Image is a serialized program file ("MPRG" format).
	Image []byte `json:"image"`
	// SessionID selects the session whose globals the program runs in.
	// Empty means a fresh throwaway namespace.
	SessionID string `json:"session_id,omitempty"`
	// Main optionally names a function to call after the top-level code
	// has run. Its repr becomes the result.
	Main string `json:"main,omitempty"`
}

// RunResponse reports the outcome of a run.
type RunResponse struct {
	Success bool `json:"success"`
	// Result is the repr of the value produced by Main, if requested.
	Result string `json:"result,omitempty"`
	// Output is everything the program printed.
	Output string `json:"output,omitempty"`
	// Module is the module name the image declared.
	Module string `json:"module,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	Traceback    string `json:"traceback,omitempty"`
}

// DisassembleRequest asks for a bytecode listing of a program image.
type DisassembleRequest struct {
	Image []byte `json:"image"`
}

// DisassembleResponse carries the listing.
type DisassembleResponse struct {
	Module  string `json:"module"`
	Listing string `json:"listing"`
}

// CreateSessionRequest opens a new workspace session.
type CreateSessionRequest struct {
	Name string `json:"name,omitempty"`
}

// CreateSessionResponse returns the new session's ID.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// CloseSessionRequest destroys a session.
type CloseSessionRequest struct {
	SessionID string `json:"session_id"`
}

// CloseSessionResponse reports whether the session existed.
type CloseSessionResponse struct {
	Closed bool `json:"closed"`
}

// ListModulesRequest asks for the names of all loaded modules.
type ListModulesRequest struct{}

// ListModulesResponse carries the sorted module names.
type ListModulesResponse struct {
	Modules []string `json:"modules"`
}
