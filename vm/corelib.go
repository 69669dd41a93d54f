package vm

import "fmt"

// ---------------------------------------------------------------------------
// Core native environment
// ---------------------------------------------------------------------------

// RegisterNative installs a host function into the global environment under
// name. The name travels with the callable so error signatures can render
// it without a process-wide registry.
func (s *State) RegisterNative(name string, fn NativeFn, arity int) {
	callee := Callable{
		Kind:       CallableNative,
		Arity:      arity,
		Native:     fn,
		NativeName: name,
	}
	s.setGlobal(name, FunctionValue(NewClosure(callee)))
}

// loadCoreLib registers the seed natives every State starts with.
func loadCoreLib(s *State) {
	s.RegisterNative("print", corePrint, 1)
	s.RegisterNative("error", coreError, 1)
}

// corePrint writes its argument's text form and a newline to the State's
// output writer.
func corePrint(s *State) Value {
	fmt.Fprintln(s.out, s.nativeArg(0).ToString())
	return NilValue()
}

// coreError raises a runtime error whose message is the argument's text
// form.
func coreError(s *State) Value {
	s.throw(s.nativeArg(0).ToString())
	return NilValue()
}
