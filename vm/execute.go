package vm

import "math"

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// execute is the instruction dispatch loop. Each iteration first services a
// pending error: if the unwinder resolves it (a protected frame caught),
// dispatch resumes; otherwise the loop exits. Every case manages the pc
// itself; straight-line opcodes advance by one, control transfer opcodes
// overwrite it.
func (s *State) execute(singleStep bool) {
	for {
		if s.hasError() && !s.handleError() {
			return
		}
		if s.ciTop == 0 || s.pc >= len(s.prog.Code) {
			return
		}

		insn := s.prog.Code[s.pc]

		switch insn.Op {
		case OpNop, OpLbl, OpCapture:
			// LBL is resolved at load time; CAPTURE is consumed during
			// CLOSURE assembly and inert anywhere else.
			s.pc++

		case OpExit:
			s.halted = true
			return

		case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow:
			lhs := s.register(insn.A)
			rhs := s.register(insn.B)
			s.arith(insn.Op, lhs, rhs)
			s.pc++

		case OpIAdd, OpISub, OpIMul, OpIDiv, OpIMod, OpIPow:
			lhs := s.register(insn.A)
			s.arithIntImm(insn.Op, lhs, UnpackInt(insn.B, insn.C))
			s.pc++

		case OpFAdd, OpFSub, OpFMul, OpFDiv, OpFMod, OpFPow:
			lhs := s.register(insn.A)
			s.arithFloatImm(insn.Op, lhs, UnpackFloat(insn.B, insn.C))
			s.pc++

		case OpNeg:
			val := s.register(insn.A)
			switch val.Kind() {
			case KindInt:
				*val = IntValue(-val.Int())
			case KindFloat:
				*val = FloatValue(-val.Float())
			default:
				s.throwf("attempt to negate a %s value", val.TypeString())
			}
			s.pc++

		case OpInc:
			val := s.register(insn.A)
			switch val.Kind() {
			case KindInt:
				*val = IntValue(val.Int() + 1)
			case KindFloat:
				*val = FloatValue(val.Float() + 1)
			default:
				s.throwf("attempt to increment a %s value", val.TypeString())
			}
			s.pc++

		case OpDec:
			val := s.register(insn.A)
			switch val.Kind() {
			case KindInt:
				*val = IntValue(val.Int() - 1)
			case KindFloat:
				*val = FloatValue(val.Float() - 1)
			default:
				s.throwf("attempt to decrement a %s value", val.TypeString())
			}
			s.pc++

		case OpMov:
			s.setRegister(insn.A, s.register(insn.B).Clone())
			s.pc++

		case OpLoadK:
			k := s.prog.Constant(int(insn.B))
			s.setRegister(insn.A, k.Clone())
			s.pc++

		case OpLoadNil:
			s.setRegister(insn.A, NilValue())
			s.pc++

		case OpLoadI:
			s.setRegister(insn.A, IntValue(UnpackInt(insn.B, insn.C)))
			s.pc++

		case OpLoadF:
			s.setRegister(insn.A, FloatValue(UnpackFloat(insn.B, insn.C)))
			s.pc++

		case OpLoadBT:
			s.setRegister(insn.A, BoolValue(true))
			s.pc++

		case OpLoadBF:
			s.setRegister(insn.A, BoolValue(false))
			s.pc++

		case OpLoadArr:
			s.setRegister(insn.A, ArrayValue(NewArray()))
			s.pc++

		case OpLoadDict:
			s.setRegister(insn.A, DictValue(NewDict()))
			s.pc++

		case OpClosure:
			size := int(insn.B)
			arity := int(insn.C)

			callee := Callable{
				Kind:  CallableFunction,
				Arity: arity,
				Fn: Function{
					ID:   s.prog.Comment(s.pc),
					Code: s.pc + 1,
					Size: size,
				},
			}

			closure := NewClosure(callee)
			s.pc++
			s.initClosure(closure, size)
			s.setRegister(insn.A, FunctionValue(closure))
			// initClosure already positioned the pc past the body.

		case OpGetUpv:
			upv := s.upvalue(int(insn.B))
			if upv != nil {
				s.setRegister(insn.A, upv.Ref.Clone())
			}
			s.pc++

		case OpSetUpv:
			s.setUpvalue(int(insn.B), s.register(insn.A))
			s.pc++

		case OpPush:
			s.push(s.register(insn.A).Clone())
			s.pc++

		case OpPushK:
			k := s.prog.Constant(int(insn.A))
			s.push(k.Clone())
			s.pc++

		case OpPushNil:
			s.push(NilValue())
			s.pc++

		case OpPushI:
			s.push(IntValue(UnpackInt(insn.B, insn.C)))
			s.pc++

		case OpPushF:
			s.push(FloatValue(UnpackFloat(insn.B, insn.C)))
			s.pc++

		case OpPushBT:
			s.push(BoolValue(true))
			s.pc++

		case OpPushBF:
			s.push(BoolValue(false))
			s.pc++

		case OpDrop:
			s.drop()
			s.pc++

		case OpGetLocal:
			if cell := s.local(int(insn.B)); cell != nil {
				s.setRegister(insn.A, cell.Clone())
			} else {
				s.throw("stack underflow")
			}
			s.pc++

		case OpSetLocal:
			s.setLocal(int(insn.B), s.register(insn.A).Move())
			s.pc++

		case OpGetArg:
			if cell := s.argument(int(insn.B)); cell != nil {
				s.setRegister(insn.A, cell.Clone())
			} else {
				s.throw("stack underflow")
			}
			s.pc++

		case OpGetGlobal:
			key := s.register(insn.B)
			if !key.IsString() {
				s.throwf("attempt to index globals with a %s key", key.TypeString())
				s.pc++
				break
			}
			s.setRegister(insn.A, s.global(key.Str().String()).Clone())
			s.pc++

		case OpSetGlobal:
			key := s.register(insn.B)
			if !key.IsString() {
				s.throwf("attempt to index globals with a %s key", key.TypeString())
				s.pc++
				break
			}
			s.setGlobal(key.Str().String(), s.register(insn.A).Move())
			s.pc++

		case OpEq:
			s.setRegister(insn.A, BoolValue(s.compareRegs(insn.B, insn.C, false)))
			s.pc++

		case OpDeq:
			s.setRegister(insn.A, BoolValue(s.compareRegs(insn.B, insn.C, true)))
			s.pc++

		case OpNeq:
			s.setRegister(insn.A, BoolValue(!s.compareRegs(insn.B, insn.C, false)))
			s.pc++

		case OpAnd:
			cond := s.register(insn.B).ToBool() && s.register(insn.C).ToBool()
			s.setRegister(insn.A, BoolValue(cond))
			s.pc++

		case OpOr:
			cond := s.register(insn.B).ToBool() || s.register(insn.C).ToBool()
			s.setRegister(insn.A, BoolValue(cond))
			s.pc++

		case OpNot:
			s.setRegister(insn.A, BoolValue(!s.register(insn.B).ToBool()))
			s.pc++

		case OpLt, OpGt, OpLtEq, OpGtEq:
			result, ok := s.compareNumeric(insn.Op, insn.B, insn.C)
			if ok {
				s.setRegister(insn.A, BoolValue(result))
			}
			s.pc++

		case OpJmp:
			s.pc += int(int16(insn.A))

		case OpJmpIf:
			if s.register(insn.A).ToBool() {
				s.pc += int(int16(insn.B))
			} else {
				s.pc++
			}

		case OpJmpIfN:
			if !s.register(insn.A).ToBool() {
				s.pc += int(int16(insn.B))
			} else {
				s.pc++
			}

		case OpJmpIfEq:
			if s.compareRegs(insn.A, insn.B, false) {
				s.pc += int(int16(insn.C))
			} else {
				s.pc++
			}

		case OpJmpIfNeq:
			if !s.compareRegs(insn.A, insn.B, false) {
				s.pc += int(int16(insn.C))
			} else {
				s.pc++
			}

		case OpJmpIfLt, OpJmpIfGt, OpJmpIfLtEq, OpJmpIfGtEq:
			result, ok := s.compareNumeric(jumpCompareOp(insn.Op), insn.A, insn.B)
			if ok && result {
				s.pc += int(int16(insn.C))
			} else {
				s.pc++
			}

		case OpLJmp:
			s.jumpToLabel(insn.A)

		case OpLJmpIf:
			if s.register(insn.A).ToBool() {
				s.jumpToLabel(insn.B)
			} else {
				s.pc++
			}

		case OpLJmpIfN:
			if !s.register(insn.A).ToBool() {
				s.jumpToLabel(insn.B)
			} else {
				s.pc++
			}

		case OpLJmpIfEq:
			if s.compareRegs(insn.A, insn.B, false) {
				s.jumpToLabel(insn.C)
			} else {
				s.pc++
			}

		case OpLJmpIfNeq:
			if !s.compareRegs(insn.A, insn.B, false) {
				s.jumpToLabel(insn.C)
			} else {
				s.pc++
			}

		case OpLJmpIfLt, OpLJmpIfGt, OpLJmpIfLtEq, OpLJmpIfGtEq:
			result, ok := s.compareNumeric(jumpCompareOp(insn.Op), insn.A, insn.B)
			if ok && result {
				s.jumpToLabel(insn.C)
			} else {
				s.pc++
			}

		case OpCall, OpPCall:
			fn := s.register(insn.A)
			if !fn.IsFunction() {
				s.throwf("attempt to call a %s value", fn.TypeString())
				s.pc++
				break
			}
			s.call(fn.Closure(), insn.Op == OpPCall)

		case OpRet:
			s.currentClosure().CloseUpvalues()
			s.doReturn(s.register(insn.A).Move())
			if s.ciTop == 0 {
				return
			}
			s.pc++

		case OpRetBT:
			s.currentClosure().CloseUpvalues()
			s.doReturn(BoolValue(true))
			if s.ciTop == 0 {
				return
			}
			s.pc++

		case OpRetBF:
			s.currentClosure().CloseUpvalues()
			s.doReturn(BoolValue(false))
			if s.ciTop == 0 {
				return
			}
			s.pc++

		case OpRetNil:
			s.currentClosure().CloseUpvalues()
			s.doReturn(NilValue())
			if s.ciTop == 0 {
				return
			}
			s.pc++

		case OpGetArr:
			arr, ok := s.registerArray(insn.B)
			if !ok {
				s.pc++
				break
			}
			index := s.register(insn.C)
			if !index.IsInt() {
				s.throw("array index out of range")
				s.pc++
				break
			}
			field := arr.Get(int(index.Int()))
			if field == nil {
				s.throw("array index out of range")
				s.pc++
				break
			}
			s.setRegister(insn.A, field.Clone())
			s.pc++

		case OpSetArr:
			arr, ok := s.registerArray(insn.B)
			if !ok {
				s.pc++
				break
			}
			index := s.register(insn.C)
			if !index.IsInt() || index.Int() < 0 {
				s.throw("array index out of range")
				s.pc++
				break
			}
			arr.Set(int(index.Int()), s.register(insn.A).Move())
			s.pc++

		case OpNextArr:
			arr, ok := s.registerArray(insn.B)
			if !ok {
				s.pc++
				break
			}
			cursor, seen := s.arrayCursors[arr]
			if seen {
				cursor++
			} else {
				cursor = 0
			}
			field := arr.Get(cursor)
			if field == nil {
				// Exhausted: yield Nil and reset so the array can be
				// iterated again.
				delete(s.arrayCursors, arr)
				s.setRegister(insn.A, NilValue())
			} else {
				s.arrayCursors[arr] = cursor
				s.setRegister(insn.A, field.Clone())
			}
			s.pc++

		case OpLenArr:
			arr, ok := s.registerArray(insn.B)
			if !ok {
				s.pc++
				break
			}
			s.setRegister(insn.A, IntValue(int32(arr.Size())))
			s.pc++

		case OpGetDict:
			dict, ok := s.registerDict(insn.B)
			if !ok {
				s.pc++
				break
			}
			key := s.register(insn.C)
			if !key.IsString() {
				s.throwf("attempt to index dict with a %s key", key.TypeString())
				s.pc++
				break
			}
			if field := dict.Get(key.Str().String()); field != nil {
				s.setRegister(insn.A, field.Clone())
			} else {
				s.setRegister(insn.A, NilValue())
			}
			s.pc++

		case OpSetDict:
			dict, ok := s.registerDict(insn.B)
			if !ok {
				s.pc++
				break
			}
			key := s.register(insn.C)
			if !key.IsString() {
				s.throwf("attempt to index dict with a %s key", key.TypeString())
				s.pc++
				break
			}
			dict.Set(key.Str().String(), s.register(insn.A).Move())
			s.pc++

		case OpNextDict:
			dict, ok := s.registerDict(insn.B)
			if !ok {
				s.pc++
				break
			}
			cursor, seen := s.dictCursors[dict]
			if seen {
				cursor++
			} else {
				cursor = 0
			}
			key, next := nextDictKey(dict, cursor)
			if next < 0 {
				delete(s.dictCursors, dict)
				s.setRegister(insn.A, NilValue())
			} else {
				s.dictCursors[dict] = next
				s.setRegister(insn.A, StringValue(NewString(key)))
			}
			s.pc++

		case OpLenDict:
			dict, ok := s.registerDict(insn.B)
			if !ok {
				s.pc++
				break
			}
			s.setRegister(insn.A, IntValue(int32(dict.Size())))
			s.pc++

		case OpConStr:
			lhs := s.register(insn.A)
			rhs := s.register(insn.B)
			if !lhs.IsString() || !rhs.IsString() {
				s.throw("attempt to concatenate non-string values")
				s.pc++
				break
			}
			s.setRegister(insn.A, StringValue(lhs.Str().Concat(rhs.Str())))
			s.pc++

		case OpGetStr:
			val := s.register(insn.A)
			if !val.IsString() {
				s.throwf("attempt to index a %s value", val.TypeString())
				s.pc++
				break
			}
			chr, fail := val.Str().Get(int(insn.C))
			if fail {
				s.throw("string index out of range")
				s.pc++
				break
			}
			s.setRegister(insn.B, StringValue(NewString(string(chr))))
			s.pc++

		case OpSetStr:
			val := s.register(insn.A)
			if !val.IsString() {
				s.throwf("attempt to index a %s value", val.TypeString())
				s.pc++
				break
			}
			if val.Str().Set(int(insn.C), byte(insn.B)) {
				s.throw("string index out of range")
			}
			s.pc++

		case OpLenStr:
			val := s.register(insn.B)
			if !val.IsString() {
				s.throwf("attempt to index a %s value", val.TypeString())
				s.pc++
				break
			}
			s.setRegister(insn.A, IntValue(int32(val.Str().Size())))
			s.pc++

		case OpICast:
			result, fail := s.register(insn.B).ToInt()
			if fail {
				s.throw("Integer cast failed")
				s.pc++
				break
			}
			s.setRegister(insn.A, IntValue(result))
			s.pc++

		case OpFCast:
			result, fail := s.register(insn.B).ToFloat()
			if fail {
				s.throw("Float cast failed")
				s.pc++
				break
			}
			s.setRegister(insn.A, FloatValue(result))
			s.pc++

		case OpStrCast:
			s.setRegister(insn.A, StringValue(NewString(s.register(insn.B).ToString())))
			s.pc++

		case OpBCast:
			s.setRegister(insn.A, BoolValue(s.register(insn.B).ToBool()))
			s.pc++

		default:
			s.throwf("unknown opcode %04X", uint16(insn.Op))
			s.pc++
		}

		if singleStep {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Dispatch helpers
// ---------------------------------------------------------------------------

// jumpToLabel moves the pc to the instruction a label resolves to.
func (s *State) jumpToLabel(label uint16) {
	target, ok := s.labels[label]
	if !ok {
		s.throwf("undefined label %d", label)
		s.pc++
		return
	}
	s.pc = target
}

// registerArray fetches register r as an array, raising an error otherwise.
func (s *State) registerArray(r uint16) (*Array, bool) {
	val := s.register(r)
	if !val.IsArray() {
		s.throwf("attempt to index a %s value", val.TypeString())
		return nil, false
	}
	return val.Array(), true
}

// registerDict fetches register r as a dict, raising an error otherwise.
func (s *State) registerDict(r uint16) (*Dict, bool) {
	val := s.register(r)
	if !val.IsDict() {
		s.throwf("attempt to index a %s value", val.TypeString())
		return nil, false
	}
	return val.Dict(), true
}

// compareRegs applies shallow or deep equality to two registers. Equal
// register indices compare equal without reading the cells.
func (s *State) compareRegs(rb, rc uint16, deep bool) bool {
	if rb == rc {
		return true
	}
	lhs := s.register(rb)
	rhs := s.register(rc)
	if lhs == rhs {
		return true
	}
	if deep {
		return lhs.CompareDeep(*rhs)
	}
	return lhs.Compare(*rhs)
}

// jumpCompareOp maps a relational jump opcode (short or long form) to the
// matching comparison opcode.
func jumpCompareOp(op Opcode) Opcode {
	switch op {
	case OpJmpIfLt, OpLJmpIfLt:
		return OpLt
	case OpJmpIfGt, OpLJmpIfGt:
		return OpGt
	case OpJmpIfLtEq, OpLJmpIfLtEq:
		return OpLtEq
	default:
		return OpGtEq
	}
}

// compareNumeric evaluates a relational comparison between two registers.
// Comparisons are numeric only; mixed int/float operands compare as float.
// The second return is false when either operand is non-numeric, in which
// case a runtime error has been raised.
func (s *State) compareNumeric(op Opcode, rb, rc uint16) (bool, bool) {
	lhs := s.register(rb)
	rhs := s.register(rc)
	if !lhs.IsNumber() || !rhs.IsNumber() {
		s.throwf("attempt to compare %s with %s", lhs.TypeString(), rhs.TypeString())
		return false, false
	}

	if lhs.IsInt() && rhs.IsInt() {
		a, b := lhs.Int(), rhs.Int()
		switch op {
		case OpLt:
			return a < b, true
		case OpGt:
			return a > b, true
		case OpLtEq:
			return a <= b, true
		default:
			return a >= b, true
		}
	}

	a, _ := lhs.ToFloat()
	b, _ := rhs.ToFloat()
	switch op {
	case OpLt:
		return a < b, true
	case OpGt:
		return a > b, true
	case OpLtEq:
		return a <= b, true
	default:
		return a >= b, true
	}
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

// arith applies a register-register arithmetic opcode in place on lhs.
// Int op Int stays Int; any Float operand promotes the result to Float.
// Division or modulo by zero raises "Division by zero" and leaves the
// destination untouched.
func (s *State) arith(op Opcode, lhs, rhs *Value) {
	if !lhs.IsNumber() || !rhs.IsNumber() {
		s.throwf("attempt to perform arithmetic on a %s value", nonNumberOf(lhs, rhs))
		return
	}

	if lhs.IsInt() && rhs.IsInt() {
		result, ok := intArith(op, lhs.Int(), rhs.Int())
		if !ok {
			s.throw("Division by zero")
			return
		}
		*lhs = IntValue(result)
		return
	}

	a, _ := lhs.ToFloat()
	b, _ := rhs.ToFloat()
	result, ok := floatArith(op, a, b)
	if !ok {
		s.throw("Division by zero")
		return
	}
	*lhs = FloatValue(result)
}

// arithIntImm applies an integer-immediate arithmetic opcode in place.
func (s *State) arithIntImm(op Opcode, lhs *Value, imm int32) {
	switch lhs.Kind() {
	case KindInt:
		result, ok := intArith(op, lhs.Int(), imm)
		if !ok {
			s.throw("Division by zero")
			return
		}
		*lhs = IntValue(result)
	case KindFloat:
		result, ok := floatArith(op, lhs.Float(), float32(imm))
		if !ok {
			s.throw("Division by zero")
			return
		}
		*lhs = FloatValue(result)
	default:
		s.throwf("attempt to perform arithmetic on a %s value", lhs.TypeString())
	}
}

// arithFloatImm applies a float-immediate arithmetic opcode in place. The
// result is always a Float, regardless of the destination's prior kind.
func (s *State) arithFloatImm(op Opcode, lhs *Value, imm float32) {
	var a float32
	switch lhs.Kind() {
	case KindInt:
		a = float32(lhs.Int())
	case KindFloat:
		a = lhs.Float()
	default:
		s.throwf("attempt to perform arithmetic on a %s value", lhs.TypeString())
		return
	}
	result, ok := floatArith(op, a, imm)
	if !ok {
		s.throw("Division by zero")
		return
	}
	*lhs = FloatValue(result)
}

// intArith evaluates one arithmetic operation on integers. The second
// return is false on a zero divisor.
func intArith(op Opcode, a, b int32) (int32, bool) {
	switch op {
	case OpAdd, OpIAdd:
		return a + b, true
	case OpSub, OpISub:
		return a - b, true
	case OpMul, OpIMul:
		return a * b, true
	case OpDiv, OpIDiv:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case OpMod, OpIMod:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	case OpPow, OpIPow:
		return int32(math.Pow(float64(a), float64(b))), true
	}
	return 0, true
}

// floatArith evaluates one arithmetic operation on floats. The second
// return is false on a zero divisor.
func floatArith(op Opcode, a, b float32) (float32, bool) {
	switch op {
	case OpAdd, OpIAdd, OpFAdd:
		return a + b, true
	case OpSub, OpISub, OpFSub:
		return a - b, true
	case OpMul, OpIMul, OpFMul:
		return a * b, true
	case OpDiv, OpIDiv, OpFDiv:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case OpMod, OpIMod, OpFMod:
		if b == 0 {
			return 0, false
		}
		return float32(math.Mod(float64(a), float64(b))), true
	case OpPow, OpIPow, OpFPow:
		return float32(math.Pow(float64(a), float64(b))), true
	}
	return 0, true
}

// nonNumberOf names the first non-numeric operand for error messages.
func nonNumberOf(lhs, rhs *Value) string {
	if !lhs.IsNumber() {
		return lhs.TypeString()
	}
	return rhs.TypeString()
}

// nextDictKey scans the dict's table from slot cursor for the next entry
// holding a non-Nil value. Returns ("", -1) when none remains.
func nextDictKey(d *Dict, cursor int) (string, int) {
	for i := cursor; ; i++ {
		node := d.entryAt(i)
		if node == nil {
			return "", -1
		}
		if node.used && !node.value.IsNil() {
			return node.key, i
		}
	}
}
