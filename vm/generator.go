package vm

import "sync"

// ---------------------------------------------------------------------------
// Generator states
// ---------------------------------------------------------------------------

// GenState tracks where a generator is in its lifecycle.
type GenState uint8

const (
	// GenCreated means the frame has never run.
	GenCreated GenState = iota
	// GenRunning means the frame is executing right now.
	GenRunning
	// GenSuspended means the frame is parked at a yield.
	GenSuspended
	// GenCompleted means the frame returned.
	GenCompleted
	// GenFailed means the frame raised.
	GenFailed
)

func (s GenState) String() string {
	switch s {
	case GenCreated:
		return "created"
	case GenRunning:
		return "running"
	case GenSuspended:
		return "suspended"
	case GenCompleted:
		return "completed"
	case GenFailed:
		return "failed"
	}
	return "unknown"
}

// GenResultKind tags the outcome of a generator operation.
type GenResultKind uint8

const (
	// GenYielded carries a yielded value.
	GenYielded GenResultKind = iota
	// GenStopIteration carries the generator's return value.
	GenStopIteration
	// GenClosed reports a completed close.
	GenClosed
	// GenNeedExecution asks the caller to drive the frame; the state
	// methods themselves never run bytecode.
	GenNeedExecution
	// GenError carries an exception to raise in the caller.
	GenError
)

// GenResult is the tagged outcome of Send, Throw, or Close.
type GenResult struct {
	Kind  GenResultKind
	Value Value
	Err   *ExceptionObject
}

// ---------------------------------------------------------------------------
// Generators
// ---------------------------------------------------------------------------

// Generator owns a suspended frame. All state transitions go through
// the guarded methods below; the running flag is the only concurrency
// control, there is no execution lock. Calling a generator function
// creates one of these without running any bytecode.
type Generator struct {
	mu       sync.Mutex
	state    GenState
	frame    *Frame
	qualName string

	started   bool
	sendValue Value
	throwExc  *ExceptionObject
}

// NewGenerator wraps a never-run frame.
func NewGenerator(frame *Frame, qualName string) *Generator {
	return &Generator{state: GenCreated, frame: frame, qualName: qualName, sendValue: None}
}

// State returns the current lifecycle state.
func (g *Generator) State() GenState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// QualName returns the generator's qualified name.
func (g *Generator) QualName() string { return g.qualName }

// Send requests that the generator resume with v as the value of its
// pending yield expression. On GenNeedExecution the caller must drive
// the frame and report back through MarkYielded, MarkCompleted, or
// MarkFailed.
func (g *Generator) Send(v Value) GenResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case GenCreated:
		if !v.IsNone() {
			return GenResult{Kind: GenError,
				Err: NewTypeError("can't send non-None value to a just-started generator")}
		}
		g.state = GenRunning
		g.sendValue = None
		return GenResult{Kind: GenNeedExecution}
	case GenSuspended:
		g.state = GenRunning
		g.sendValue = v
		return GenResult{Kind: GenNeedExecution}
	case GenRunning:
		return GenResult{Kind: GenError,
			Err: NewValueError("generator already executing")}
	case GenCompleted:
		return GenResult{Kind: GenStopIteration, Value: None}
	default: // GenFailed
		return GenResult{Kind: GenError, Err: NewStopIteration(None)}
	}
}

// Throw requests that exc be raised at the generator's pending yield.
func (g *Generator) Throw(exc *ExceptionObject) GenResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case GenCreated, GenSuspended:
		g.state = GenRunning
		g.throwExc = exc
		return GenResult{Kind: GenNeedExecution}
	case GenRunning:
		return GenResult{Kind: GenError,
			Err: NewValueError("generator already executing")}
	default: // GenCompleted, GenFailed
		return GenResult{Kind: GenError, Err: exc}
	}
}

// Close requests shutdown. A never-started generator completes
// immediately; a suspended one gets GeneratorExit raised at its yield.
func (g *Generator) Close() GenResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case GenCreated:
		g.state = GenCompleted
		return GenResult{Kind: GenClosed}
	case GenSuspended:
		g.state = GenRunning
		g.throwExc = NewException("GeneratorExit", "")
		return GenResult{Kind: GenNeedExecution}
	case GenRunning:
		return GenResult{Kind: GenError,
			Err: NewValueError("generator already executing")}
	default: // GenCompleted, GenFailed
		return GenResult{Kind: GenClosed}
	}
}

// ---------------------------------------------------------------------------
// Driver protocol
// ---------------------------------------------------------------------------

// TakePending hands the driver everything it needs to re-enter the
// frame: the frame itself, the value to push for the yield expression,
// an exception to inject instead, and whether this is the first entry.
func (g *Generator) TakePending() (fr *Frame, send Value, throw *ExceptionObject, first bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fr = g.frame
	send = g.sendValue
	throw = g.throwExc
	first = !g.started
	g.started = true
	g.sendValue = None
	g.throwExc = nil
	return fr, send, throw, first
}

// MarkYielded parks the generator at a yield.
func (g *Generator) MarkYielded() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = GenSuspended
}

// MarkCompleted records a normal return; the frame is released.
func (g *Generator) MarkCompleted() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = GenCompleted
	g.frame = nil
}

// MarkFailed records an escaped exception; the frame is released.
func (g *Generator) MarkFailed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = GenFailed
	g.frame = nil
}

// ---------------------------------------------------------------------------
// Coroutines
// ---------------------------------------------------------------------------

// Coroutine is the awaitable twin of Generator: identical state machine,
// driven through GET_AWAITABLE and YIELD_FROM instead of FOR_ITER.
type Coroutine struct {
	Generator
}

// NewCoroutine wraps a never-run frame.
func NewCoroutine(frame *Frame, qualName string) *Coroutine {
	c := &Coroutine{}
	c.state = GenCreated
	c.frame = frame
	c.qualName = qualName
	c.sendValue = None
	return c
}
