// Package vm implements the XVM execution engine: a register-based bytecode
// virtual machine for a small dynamically typed scripting language.
//
// The engine consumes already-assembled programs (instructions, constants
// and per-instruction debug info) and executes them in a State that owns
// the register file, the data stack, the call-info stack and the global
// environment. Values follow an exclusive-ownership model: there is no
// garbage collector, copies are explicit deep clones, and moves leave the
// source Nil. Runtime failures flow through the State's error slot and are
// either caught by a protected call (PCALL) or reported with a backtrace.
package vm
