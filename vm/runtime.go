package vm

// Runtime primitives: the small operations the dispatch loop is built out
// of. These mutate State directly and report failures through the error
// slot, never through Go panics.

// ---------------------------------------------------------------------------
// Data stack
// ---------------------------------------------------------------------------

// push places v on top of the data stack. Overflow raises "Stack overflow"
// and discards the value.
func (s *State) push(v Value) {
	if s.stackTop >= MaxLocals {
		s.throw("Stack overflow")
		return
	}
	s.stack[s.stackTop] = v
	s.stackTop++
}

// pushRaw is push without the bounds check, for the return path which has
// already validated its slot.
func (s *State) pushRaw(v Value) {
	s.stack[s.stackTop] = v
	s.stackTop++
}

// drop removes and resets the top stack slot. Underflow raises
// "stack underflow".
func (s *State) drop() {
	if s.stackTop <= 0 {
		s.throw("stack underflow")
		return
	}
	s.stackTop--
	s.stack[s.stackTop].Reset()
}

// ---------------------------------------------------------------------------
// Locals, arguments, registers, globals
// ---------------------------------------------------------------------------

// local returns the frame-relative local cell: stackBase + offset - 1.
// Returns nil when the slot is outside the stack buffer.
func (s *State) local(offset int) *Value {
	idx := s.stackBase + offset - 1
	if idx < 0 || idx >= len(s.stack) {
		return nil
	}
	return &s.stack[idx]
}

// setLocal stores v into the frame-relative local cell.
func (s *State) setLocal(offset int, v Value) {
	if cell := s.local(offset); cell != nil {
		*cell = v
	} else {
		s.throw("stack underflow")
	}
}

// argument returns the k-th call argument: the cell at stackBase - k - 1.
// Arguments were pushed by the caller immediately below the frame base.
// Returns nil when no such cell exists.
func (s *State) argument(k int) *Value {
	idx := s.stackBase - k - 1
	if idx < 0 || idx >= len(s.stack) {
		return nil
	}
	return &s.stack[idx]
}

// nativeArg returns the k-th argument as seen by a native function: the
// k-th value from the top of the stack, since natives run before a frame
// base is established. Missing arguments read as Nil.
func (s *State) nativeArg(k int) Value {
	idx := s.stackTop - k - 1
	if idx < 0 || idx >= s.stackTop {
		return NilValue()
	}
	return s.stack[idx]
}

// register returns the register cell r.
func (s *State) register(r uint16) *Value {
	return &s.registers[r]
}

// setRegister stores v into register r, dropping whatever it held.
func (s *State) setRegister(r uint16, v Value) {
	s.registers[r] = v
}

// global returns the global stored under name, or a Nil value.
func (s *State) global(name string) Value {
	if v := s.globals.Get(name); v != nil {
		return *v
	}
	return NilValue()
}

// setGlobal stores v in the global environment.
func (s *State) setGlobal(name string, v Value) {
	s.globals.Set(name, v)
}

// ---------------------------------------------------------------------------
// Calls and returns
// ---------------------------------------------------------------------------

// call enters callee. For a script function the frame records the return
// pc and stack top, the pc moves to the function body and the frame base
// becomes the current stack top. A native is invoked synchronously and its
// result returned immediately. The frame owns a clone of the callee, so
// upvalue writes inside the call never alias the caller's copy.
func (s *State) call(callee *Closure, protect bool) {
	if s.ciTop >= MaxFrames || s.stackTop >= MaxLocals {
		s.throw("Stack overflow")
		return
	}

	frame := CallInfo{
		Protect:  protect,
		Closure:  callee.Clone(),
		SavedTop: s.stackTop,
	}

	switch callee.Callee.Kind {
	case CallableFunction:
		// Script functions reposition the pc themselves through RET.
		frame.SavedPC = s.pc
		s.frames[s.ciTop] = frame
		s.ciTop++
		s.pc = callee.Callee.Fn.Code
		s.stackBase = s.stackTop

	case CallableNative:
		// Natives never execute a RET, so the saved pc already points
		// past the call site.
		frame.SavedPC = s.pc + 1
		s.frames[s.ciTop] = frame
		s.ciTop++
		result := frame.Closure.Callee.Native(s)
		if protect && s.hasError() {
			// The native's frame is popped before the unwinder runs, so a
			// protected native call catches its error here.
			result = StringValue(NewString(s.err.Message))
			s.clearError()
		}
		s.doReturn(result)

	default:
		s.throw("attempt to call an invalid function value")
	}
}

// doReturn restores the caller's pc and stack top, pushes the result above
// the saved top and pops the frame.
func (s *State) doReturn(result Value) {
	frame := &s.frames[s.ciTop-1]
	s.pc = frame.SavedPC
	s.stackTop = frame.SavedTop + 1
	s.pushRaw(result)
	s.popFrame()
}

// popFrame discards the top call frame.
func (s *State) popFrame() {
	s.ciTop--
	s.frames[s.ciTop] = CallInfo{}
}

// currentClosure returns the closure of the active frame.
func (s *State) currentClosure() *Closure {
	return s.frames[s.ciTop-1].Closure
}

// ---------------------------------------------------------------------------
// Closure assembly and upvalues
// ---------------------------------------------------------------------------

// initClosure walks the size instructions of a function body directly after
// a CLOSURE opcode, consuming embedded CAPTURE pseudo-instructions into
// upvalue cells. A nested CLOSURE header and its declared body are skipped
// as one unit: its CAPTUREs belong to the inner closure and are consumed
// only when dispatch constructs it. The pc ends up on the first instruction
// past the body.
func (s *State) initClosure(closure *Closure, size int) {
	for i := 0; i < size && s.pc < len(s.prog.Code); {
		insn := s.prog.Code[s.pc]
		s.pc++
		i++
		switch insn.Op {
		case OpCapture:
			s.capture(closure, insn)
		case OpClosure:
			nested := int(insn.B)
			s.pc += nested
			i += nested
		}
	}
}

// capture appends one upvalue cell per CAPTURE r,k: r=0 captures the k-th
// local of the enclosing frame as an open cell; r=1 captures the k-th
// upvalue of the enclosing closure, eagerly closing it so the new closure
// owns an independent closed copy.
func (s *State) capture(closure *Closure, insn Instruction) {
	idx := int(insn.B)

	if insn.A == 0 {
		cell := s.local(idx)
		if cell == nil {
			s.throw("stack underflow")
			return
		}
		closure.Upvs = append(closure.Upvs, &UpValue{
			Open:  true,
			Valid: true,
			Ref:   cell,
		})
		return
	}

	upv := s.currentClosure().Upvalue(idx)
	if upv == nil {
		s.throw("upvalue index out of range")
		return
	}
	upv.Close()

	cell := &UpValue{Valid: true}
	cell.Heap = upv.Ref.Clone()
	cell.Ref = &cell.Heap
	closure.Upvs = append(closure.Upvs, cell)
}

// upvalue fetches cell index of the active frame's closure, raising a
// runtime error when the index is not strictly less than the count.
func (s *State) upvalue(index int) *UpValue {
	upv := s.currentClosure().Upvalue(index)
	if upv == nil {
		s.throw("upvalue index out of range")
	}
	return upv
}

// setUpvalue writes through the cell at index: an initialized cell's
// target receives a clone of v; an uninitialized cell becomes a closed
// heap cell holding the clone.
func (s *State) setUpvalue(index int, v *Value) {
	upv := s.upvalue(index)
	if upv == nil {
		return
	}
	if upv.Ref != nil {
		*upv.Ref = v.Clone()
	} else {
		upv.Heap = v.Clone()
		upv.Ref = &upv.Heap
		upv.Open = false
	}
	upv.Valid = true
}
