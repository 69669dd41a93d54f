package vm

import (
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// stateLog carries engine lifecycle and failure events. Verbosity is
// configured by the embedding host; the engine never configures backends.
var stateLog = commonlog.GetLogger("xvm.state")

// ---------------------------------------------------------------------------
// Execution limits
// ---------------------------------------------------------------------------

const (
	// RegisterCount is the number of addressable registers, matching the
	// 16-bit operand range.
	RegisterCount = 0xFFFF + 1

	// MaxLocals bounds the data stack.
	MaxLocals = 200

	// MaxFrames bounds the call-info stack.
	MaxFrames = 200
)

// ---------------------------------------------------------------------------
// Call frames
// ---------------------------------------------------------------------------

// CallInfo is the execution context of one active function invocation.
// Protect marks a protected call boundary: an error unwinding through it is
// caught and returned as a String from the call.
type CallInfo struct {
	Protect  bool
	Closure  *Closure // owned clone of the callee
	SavedPC  int
	SavedTop int
}

// ---------------------------------------------------------------------------
// State
// ---------------------------------------------------------------------------

// State is the complete execution state of one program run: the register
// file, data stack, call-info stack, global environment, error slot and
// program counter. A State is single-threaded and is not shared; every
// owned composite has exactly one owner at any time.
type State struct {
	id   string
	prog *Program

	labels  map[uint16]int
	globals *Dict
	err     ErrorInfo

	registers []Value
	stack     []Value
	frames    []CallInfo

	pc        int
	stackTop  int
	stackBase int
	ciTop     int

	main Value

	// Iteration cursors for NEXTARR/NEXTDICT live here, scoped to the
	// State, keyed by container identity.
	arrayCursors map[*Array]int
	dictCursors  map[*Dict]int

	out       io.Writer
	errOut    io.Writer
	lastError *RuntimeError
	halted    bool
}

// NewState builds a State for the given program: it scans the label table,
// loads the core natives into the global environment, wraps the whole
// instruction vector as the main function and pushes its frame. Execution
// has not started yet; call Run.
func NewState(prog *Program) *State {
	s := &State{
		id:           uuid.NewString(),
		prog:         prog,
		labels:       scanLabels(prog),
		globals:      NewDict(),
		registers:    make([]Value, RegisterCount),
		stack:        make([]Value, MaxLocals+2),
		frames:       make([]CallInfo, MaxFrames),
		arrayCursors: make(map[*Array]int),
		dictCursors:  make(map[*Dict]int),
		out:          os.Stdout,
		errOut:       os.Stdout,
	}

	loadCoreLib(s)
	s.loadMainFunction()
	s.call(s.main.Closure(), false)

	stateLog.Debugf("state %s: %d instructions, %d constants, %d labels",
		s.id, len(prog.Code), len(prog.Constants), len(s.labels))
	return s
}

// scanLabels builds the label table in a single pre-pass: every LBL opcode
// maps its numeric label operand to its own instruction index. An LBL
// without an operand is a plain marker and registers nothing.
func scanLabels(prog *Program) map[uint16]int {
	labels := make(map[uint16]int)
	for i, insn := range prog.Code {
		if insn.Op == OpLbl && insn.A != OperandInvalid {
			labels[insn.A] = i
		}
	}
	return labels
}

// loadMainFunction wraps the full instruction vector as "main".
func (s *State) loadMainFunction() {
	callee := Callable{
		Kind:  CallableFunction,
		Arity: 1,
		Fn: Function{
			ID:   "main",
			Code: 0,
			Size: len(s.prog.Code),
		},
	}
	s.main = FunctionValue(NewClosure(callee))
}

// ID returns the unique identifier of this execution.
func (s *State) ID() string { return s.id }

// Program returns the program being executed.
func (s *State) Program() *Program { return s.prog }

// SetOutput redirects the print native's output.
func (s *State) SetOutput(w io.Writer) { s.out = w }

// SetErrorOutput redirects unhandled-error reports.
func (s *State) SetErrorOutput(w io.Writer) { s.errOut = w }

// PC returns the current program counter.
func (s *State) PC() int { return s.pc }

// Depth returns the number of active call frames.
func (s *State) Depth() int { return s.ciTop }

// Globals exposes the global environment.
func (s *State) Globals() *Dict { return s.globals }

// Register returns a reference to register r.
func (s *State) Register(r uint16) *Value { return &s.registers[r] }

// StackSize returns the current data stack height.
func (s *State) StackSize() int { return s.stackTop }

// StackAt returns the stack slot at height i, or nil out of range.
func (s *State) StackAt(i int) *Value {
	if i < 0 || i >= s.stackTop {
		return nil
	}
	return &s.stack[i]
}

// Frame returns the call frame at depth i (0 is the bottom), or nil.
func (s *State) Frame(i int) *CallInfo {
	if i < 0 || i >= s.ciTop {
		return nil
	}
	return &s.frames[i]
}

// LabelTarget resolves a label id to its instruction index. The second
// return is false for unknown labels.
func (s *State) LabelTarget(label uint16) (int, bool) {
	target, ok := s.labels[label]
	return target, ok
}

// Run executes until the final return from main, an EXIT instruction, or an
// unhandled runtime error. On clean termination it returns the program
// result: the value left on top of the data stack, or Nil. An unhandled
// error is returned as a *RuntimeError after its report has been written to
// the error output.
func (s *State) Run() (Value, error) {
	s.execute(false)
	if s.lastError != nil {
		return NilValue(), s.lastError
	}
	if s.stackTop > 0 {
		return s.stack[s.stackTop-1].Clone(), nil
	}
	return NilValue(), nil
}

// Step executes a single instruction, including the pre-step error check.
// It reports whether execution can continue.
func (s *State) Step() bool {
	if s.finished() {
		return false
	}
	s.execute(true)
	return !s.finished()
}

// finished reports whether dispatch has terminated.
func (s *State) finished() bool {
	return s.halted || s.ciTop == 0 || s.lastError != nil || s.pc >= len(s.prog.Code)
}

// Err returns the unhandled runtime error, if execution ended with one.
func (s *State) Err() *RuntimeError { return s.lastError }
