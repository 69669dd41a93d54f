package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Error subsystem
// ---------------------------------------------------------------------------

// ErrorInfo is the active/inactive runtime error slot of a State. All
// engine failures flow through this slot and the dispatcher's pre-step
// check; the engine never unwinds the host stack with panics.
type ErrorInfo struct {
	Error   bool
	Func    string // signature of the function the error was raised in
	Message string
}

// RuntimeError is the host-facing form of an unhandled runtime error. It is
// returned by Run after the unwinder has exhausted all frames without
// finding a protected one.
type RuntimeError struct {
	Func      string
	Message   string
	Backtrace []string
}

func (e *RuntimeError) Error() string {
	return e.Func + ": " + e.Message
}

// report renders the user-visible failure: the signature and message,
// followed by one line per unwound frame.
func (e *RuntimeError) report() string {
	var sb strings.Builder
	sb.WriteString(e.Func)
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	sb.WriteByte('\n')
	for i, sig := range e.Backtrace {
		fmt.Fprintf(&sb, " #%d %s\n", i, sig)
	}
	return sb.String()
}

// throw records a runtime error against the current frame. Dispatch keeps
// going; the unwinder runs at the top of the next iteration.
func (s *State) throw(message string) {
	sig := "function main"
	if s.ciTop > 0 {
		sig = s.frames[s.ciTop-1].Closure.Callee.Signature()
	}
	s.err.Error = true
	s.err.Func = sig
	s.err.Message = message
}

// throwf is throw with formatting.
func (s *State) throwf(format string, args ...any) {
	s.throw(fmt.Sprintf(format, args...))
}

// clearError deactivates the error slot.
func (s *State) clearError() {
	s.err.Error = false
}

// hasError reports whether an error is pending.
func (s *State) hasError() bool {
	return s.err.Error
}

// handleError unwinds the call stack from the top. A protected frame
// catches: the error is cleared and the protected call returns the message
// as a String, and dispatch resumes. If the bottom frame is reached
// instead, the failure is reported on the error writer and dispatch stops.
func (s *State) handleError() bool {
	var sigs []string

	for s.ciTop > 0 {
		frame := &s.frames[s.ciTop-1]
		if frame.Protect {
			msg := NewString(s.err.Message)
			s.clearError()
			s.doReturn(StringValue(msg))
			// The restored pc addresses the PCALL instruction itself;
			// resume on the instruction after it.
			s.pc++
			return true
		}
		sigs = append(sigs, frame.Closure.Callee.Signature())
		s.popFrame()
	}

	s.lastError = &RuntimeError{
		Func:      s.err.Func,
		Message:   s.err.Message,
		Backtrace: sigs,
	}
	fmt.Fprint(s.errOut, s.lastError.report())
	stateLog.Errorf("unhandled runtime error in %s: %s", s.err.Func, s.err.Message)
	return false
}
