package vm

import (
	"fmt"
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: tagged union over all runtime types
// ---------------------------------------------------------------------------

// ValueKind discriminates the active variant of a Value.
type ValueKind uint8

const (
	KindNil      ValueKind = iota // empty value
	KindInt                       // signed 32-bit integer
	KindFloat                     // IEEE-754 32-bit float
	KindBool                      // boolean
	KindString                    // pointer to String
	KindFunction                  // pointer to Closure
	KindArray                     // pointer to Array
	KindDict                      // pointer to Dict
)

// kindNames maps kinds to their runtime type names.
var kindNames = [...]string{
	KindNil:      "nil",
	KindInt:      "int",
	KindFloat:    "float",
	KindBool:     "bool",
	KindString:   "string",
	KindFunction: "function",
	KindArray:    "array",
	KindDict:     "dict",
}

func (k ValueKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is the polymorphic container for all dynamically typed runtime
// values. A Value exclusively owns the composite its tag points at; copying
// requires an explicit Clone, and Move leaves the source as Nil. There is no
// garbage collector behind this: ownership is the memory model.
type Value struct {
	kind ValueKind
	i    int32
	f    float32
	b    bool
	str  *String
	arr  *Array
	dict *Dict
	clsr *Closure
}

// NilValue returns the nil value.
func NilValue() Value {
	return Value{kind: KindNil}
}

// IntValue constructs an Int value.
func IntValue(i int32) Value {
	return Value{kind: KindInt, i: i}
}

// FloatValue constructs a Float value.
func FloatValue(f float32) Value {
	return Value{kind: KindFloat, f: f}
}

// BoolValue constructs a Bool value.
func BoolValue(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// StringValue constructs a String value owning str.
func StringValue(str *String) Value {
	return Value{kind: KindString, str: str}
}

// ArrayValue constructs an Array value owning arr.
func ArrayValue(arr *Array) Value {
	return Value{kind: KindArray, arr: arr}
}

// DictValue constructs a Dict value owning dict.
func DictValue(dict *Dict) Value {
	return Value{kind: KindDict, dict: dict}
}

// FunctionValue constructs a Function value owning clsr.
func FunctionValue(clsr *Closure) Value {
	return Value{kind: KindFunction, clsr: clsr}
}

// Kind returns the value's tag.
func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsNil() bool      { return v.kind == KindNil }
func (v Value) IsInt() bool      { return v.kind == KindInt }
func (v Value) IsFloat() bool    { return v.kind == KindFloat }
func (v Value) IsNumber() bool   { return v.kind == KindInt || v.kind == KindFloat }
func (v Value) IsBool() bool     { return v.kind == KindBool }
func (v Value) IsString() bool   { return v.kind == KindString }
func (v Value) IsArray() bool    { return v.kind == KindArray }
func (v Value) IsDict() bool     { return v.kind == KindDict }
func (v Value) IsFunction() bool { return v.kind == KindFunction }

// IsSubscriptable reports whether the value supports indexed access.
func (v Value) IsSubscriptable() bool {
	return v.IsString() || v.IsArray() || v.IsDict()
}

// Int returns the integer payload. Valid only when IsInt.
func (v Value) Int() int32 { return v.i }

// Float returns the float payload. Valid only when IsFloat.
func (v Value) Float() float32 { return v.f }

// Bool returns the boolean payload. Valid only when IsBool.
func (v Value) Bool() bool { return v.b }

// Str returns the owned String, or nil for other kinds.
func (v Value) Str() *String { return v.str }

// Array returns the owned Array, or nil for other kinds.
func (v Value) Array() *Array { return v.arr }

// Dict returns the owned Dict, or nil for other kinds.
func (v Value) Dict() *Dict { return v.dict }

// Closure returns the owned Closure, or nil for other kinds.
func (v Value) Closure() *Closure { return v.clsr }

// ---------------------------------------------------------------------------
// Ownership: clone, reset, move
// ---------------------------------------------------------------------------

// Clone returns a deep copy of the value. Primitives are copied bitwise;
// composites allocate a new owner that recursively clones its contents.
// Cloning a closure closes its open upvalues first, so the copy carries an
// independent snapshot of every captured cell.
func (v Value) Clone() Value {
	switch v.kind {
	case KindString:
		return StringValue(v.str.Clone())
	case KindArray:
		return ArrayValue(v.arr.Clone())
	case KindDict:
		return DictValue(v.dict.Clone())
	case KindFunction:
		return FunctionValue(v.clsr.Clone())
	default:
		return v
	}
}

// Reset drops the owned resource and transitions the value to Nil.
func (v *Value) Reset() {
	*v = Value{}
}

// Move transfers ownership out of v, leaving it Nil.
func (v *Value) Move() Value {
	moved := *v
	*v = Value{}
	return moved
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// ToBool converts to a boolean using truthiness: only Nil and false are
// falsy, everything else is truthy.
func (v Value) ToBool() bool {
	if v.kind == KindBool {
		return v.b
	}
	return v.kind != KindNil
}

// ToInt attempts conversion to an integer. Strings must parse as a whole
// decimal integer. The second return is true on failure.
func (v Value) ToInt() (int32, bool) {
	switch v.kind {
	case KindInt:
		return v.i, false
	case KindBool:
		if v.b {
			return 1, false
		}
		return 0, false
	case KindString:
		s := v.str.String()
		if s == "" {
			break
		}
		n, err := strconv.ParseInt(s, 10, 32)
		if err == nil {
			return int32(n), false
		}
	}
	return intCastSentinel, true
}

// intCastSentinel is returned by failed integer conversions.
const intCastSentinel int32 = -0x0FFFFFFF

// ToFloat attempts conversion to a float. Strings must parse as a whole
// decimal number. The second return is true on failure.
func (v Value) ToFloat() (float32, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, false
	case KindInt:
		return float32(v.i), false
	case KindBool:
		if v.b {
			return 1, false
		}
		return 0, false
	case KindString:
		s := v.str.String()
		if s == "" {
			break
		}
		f, err := strconv.ParseFloat(s, 32)
		if err == nil {
			return float32(f), false
		}
	}
	return float32(math.NaN()), true
}

// ToString renders the value as text. Primitives render canonically;
// composites render as <kind@0xADDR>; functions include their id.
func (v Value) ToString() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindInt:
		return strconv.FormatInt(int64(v.i), 10)
	case KindFloat:
		return strconv.FormatFloat(float64(v.f), 'f', 6, 32)
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindString:
		return v.str.String()
	case KindArray:
		return fmt.Sprintf("<array@%p>", v.arr)
	case KindDict:
		return fmt.Sprintf("<dict@%p>", v.dict)
	case KindFunction:
		if v.clsr.Callee.Kind == CallableFunction {
			return fmt.Sprintf("<function %s@%p>", v.clsr.Callee.Fn.ID, v.clsr)
		}
		return fmt.Sprintf("<native@%p>", v.clsr)
	}
	return "nil"
}

// TypeString returns the runtime type name.
func (v Value) TypeString() string {
	return v.kind.String()
}

// Length returns the byte length for strings and the logical size for
// arrays and dicts; -1 for everything else.
func (v Value) Length() int {
	switch v.kind {
	case KindString:
		return v.str.Size()
	case KindArray:
		return v.arr.Size()
	case KindDict:
		return v.dict.Size()
	}
	return -1
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

// Compare performs a shallow equality check: structural for primitives and
// strings, unconditionally false for composites.
func (v Value) Compare(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindBool:
		return v.b == other.b
	case KindString:
		return v.str.Equal(other.str)
	}
	return false
}

// CompareDeep performs structural equality, recursing element-wise into
// arrays. Dicts and closures always compare unequal.
func (v Value) CompareDeep(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil, KindInt, KindFloat, KindBool, KindString:
		return v.Compare(other)
	case KindArray:
		a, b := v.arr, other.arr
		if a.Size() != b.Size() {
			return false
		}
		n := a.Cap()
		if b.Cap() > n {
			n = b.Cap()
		}
		for i := 0; i < n; i++ {
			var av, bv Value
			if p := a.Get(i); p != nil {
				av = *p
			}
			if p := b.Get(i); p != nil {
				bv = *p
			}
			if !av.CompareDeep(bv) {
				return false
			}
		}
		return true
	}
	return false
}
