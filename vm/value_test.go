package vm

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Ownership tests
// ---------------------------------------------------------------------------

func TestValueMoveLeavesNil(t *testing.T) {
	v := StringValue(NewString("hello"))
	moved := v.Move()

	if !v.IsNil() {
		t.Errorf("source kind = %v, want nil after move", v.Kind())
	}
	if !moved.IsString() || moved.Str().String() != "hello" {
		t.Errorf("moved value = %v, want string hello", moved.ToString())
	}
}

func TestValueResetDropsResource(t *testing.T) {
	v := ArrayValue(NewArray())
	v.Reset()
	if !v.IsNil() {
		t.Errorf("kind = %v, want nil after reset", v.Kind())
	}
	if v.Array() != nil {
		t.Error("array pointer survived reset")
	}
}

func TestValueCloneIsIndependent(t *testing.T) {
	arr := NewArray()
	arr.Set(0, IntValue(1))
	original := ArrayValue(arr)

	clone := original.Clone()
	clone.Array().Set(0, IntValue(99))

	if got := original.Array().Get(0).Int(); got != 1 {
		t.Errorf("original[0] = %d after mutating clone, want 1", got)
	}
	if got := clone.Array().Get(0).Int(); got != 99 {
		t.Errorf("clone[0] = %d, want 99", got)
	}
}

func TestValueCloneNestedComposites(t *testing.T) {
	inner := NewArray()
	inner.Set(0, StringValue(NewString("x")))
	outer := NewArray()
	outer.Set(0, ArrayValue(inner))

	original := ArrayValue(outer)
	clone := original.Clone()

	clone.Array().Get(0).Array().Get(0).Str().Set(0, 'y')

	if got := original.Array().Get(0).Array().Get(0).Str().String(); got != "x" {
		t.Errorf("nested original = %q after mutating clone, want x", got)
	}
}

// ---------------------------------------------------------------------------
// Truthiness
// ---------------------------------------------------------------------------

func TestTruthiness(t *testing.T) {
	tests := []struct {
		value Value
		want  bool
	}{
		{NilValue(), false},
		{BoolValue(false), false},
		{BoolValue(true), true},
		{IntValue(0), true},
		{IntValue(-1), true},
		{FloatValue(0), true},
		{StringValue(NewString("")), true},
		{ArrayValue(NewArray()), true},
		{DictValue(NewDict()), true},
	}
	for _, tt := range tests {
		if got := tt.value.ToBool(); got != tt.want {
			t.Errorf("ToBool(%s %s) = %v, want %v",
				tt.value.TypeString(), tt.value.ToString(), got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Conversion round-trips
// ---------------------------------------------------------------------------

func TestIntStringRoundTrip(t *testing.T) {
	for _, n := range []int32{0, 1, -1, 42, -2147483648, 2147483647} {
		text := IntValue(n).ToString()
		back, fail := StringValue(NewString(text)).ToInt()
		if fail || back != n {
			t.Errorf("round trip of %d via %q = %d (fail=%v)", n, text, back, fail)
		}
	}
}

func TestFloatStringRoundTrip(t *testing.T) {
	for _, f := range []float32{0, 1.5, -2.25, 1000} {
		text := FloatValue(f).ToString()
		back, fail := StringValue(NewString(text)).ToFloat()
		if fail {
			t.Fatalf("round trip of %f via %q failed", f, text)
		}
		diff := back - f
		if diff < 0 {
			diff = -diff
		}
		if diff > 1e-5 {
			t.Errorf("round trip of %f via %q = %f", f, text, back)
		}
	}
}

func TestBoolToString(t *testing.T) {
	if got := BoolValue(true).ToString(); got != "true" {
		t.Errorf("true renders as %q", got)
	}
	if got := BoolValue(false).ToString(); got != "false" {
		t.Errorf("false renders as %q", got)
	}
}

func TestToIntParsesWholeStringsOnly(t *testing.T) {
	if _, fail := StringValue(NewString("12x")).ToInt(); !fail {
		t.Error("partial parse of \"12x\" should fail")
	}
	if _, fail := StringValue(NewString("")).ToInt(); !fail {
		t.Error("empty string conversion should fail")
	}
	if n, fail := StringValue(NewString("-7")).ToInt(); fail || n != -7 {
		t.Errorf("\"-7\" = %d (fail=%v)", n, fail)
	}
	if n, fail := BoolValue(true).ToInt(); fail || n != 1 {
		t.Errorf("true = %d (fail=%v), want 1", n, fail)
	}
}

func TestToFloatFromString(t *testing.T) {
	if f, fail := StringValue(NewString("2.5")).ToFloat(); fail || f != 2.5 {
		t.Errorf("\"2.5\" = %f (fail=%v)", f, fail)
	}
	if _, fail := StringValue(NewString("2.5y")).ToFloat(); !fail {
		t.Error("partial parse of \"2.5y\" should fail")
	}
}

func TestCompositeToString(t *testing.T) {
	arr := ArrayValue(NewArray())
	if got := arr.ToString(); !strings.HasPrefix(got, "<array@0x") {
		t.Errorf("array renders as %q", got)
	}
	dict := DictValue(NewDict())
	if got := dict.ToString(); !strings.HasPrefix(got, "<dict@0x") {
		t.Errorf("dict renders as %q", got)
	}
	fn := FunctionValue(NewClosure(Callable{
		Kind: CallableFunction,
		Fn:   Function{ID: "f"},
	}))
	if got := fn.ToString(); !strings.HasPrefix(got, "<function f@0x") {
		t.Errorf("function renders as %q", got)
	}
}

// ---------------------------------------------------------------------------
// Length and comparison
// ---------------------------------------------------------------------------

func TestLength(t *testing.T) {
	if got := StringValue(NewString("abc")).Length(); got != 3 {
		t.Errorf("string length = %d, want 3", got)
	}
	arr := NewArray()
	arr.Set(0, IntValue(1))
	arr.Set(1, IntValue(2))
	if got := ArrayValue(arr).Length(); got != 2 {
		t.Errorf("array length = %d, want 2", got)
	}
	if got := IntValue(5).Length(); got != -1 {
		t.Errorf("int length = %d, want -1", got)
	}
	if got := NilValue().Length(); got != -1 {
		t.Errorf("nil length = %d, want -1", got)
	}
}

func TestCompareShallow(t *testing.T) {
	if !IntValue(3).Compare(IntValue(3)) {
		t.Error("3 != 3")
	}
	if IntValue(3).Compare(FloatValue(3)) {
		t.Error("int 3 compared equal to float 3")
	}
	if !NilValue().Compare(NilValue()) {
		t.Error("nil != nil")
	}
	if !StringValue(NewString("ab")).Compare(StringValue(NewString("ab"))) {
		t.Error("equal strings compared unequal")
	}

	// Composites are pointer-agnostic false under shallow comparison.
	arr := NewArray()
	a := ArrayValue(arr)
	b := ArrayValue(arr)
	if a.Compare(b) {
		t.Error("composites must compare shallow-unequal")
	}
}

func TestCompareDeepArrays(t *testing.T) {
	build := func(values ...int32) Value {
		arr := NewArray()
		for i, n := range values {
			arr.Set(i, IntValue(n))
		}
		return ArrayValue(arr)
	}

	if !build(1, 2, 3).CompareDeep(build(1, 2, 3)) {
		t.Error("[1 2 3] deep-unequal to itself")
	}
	if build(1, 2, 3).CompareDeep(build(1, 2, 4)) {
		t.Error("[1 2 3] deep-equal to [1 2 4]")
	}
	if build(1, 2).CompareDeep(build(1, 2, 3)) {
		t.Error("arrays of different size deep-equal")
	}

	// Dicts remain a deep-comparison gap.
	if DictValue(NewDict()).CompareDeep(DictValue(NewDict())) {
		t.Error("dicts must deep-compare unequal")
	}
}
