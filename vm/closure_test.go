package vm

import "testing"

func TestUpValueClose(t *testing.T) {
	slot := IntValue(10)
	upv := &UpValue{Open: true, Valid: true, Ref: &slot}

	upv.Close()

	if upv.Open {
		t.Fatal("cell still open after close")
	}
	if upv.Ref != &upv.Heap {
		t.Fatal("closed cell must reference its own heap slot")
	}

	// The original slot is detached now.
	slot = IntValue(99)
	if upv.Ref.Int() != 10 {
		t.Errorf("closed cell = %d, want the captured 10", upv.Ref.Int())
	}
}

func TestUpValueCloseIsIdempotent(t *testing.T) {
	slot := IntValue(1)
	upv := &UpValue{Open: true, Valid: true, Ref: &slot}
	upv.Close()
	ref := upv.Ref
	upv.Close()
	if upv.Ref != ref {
		t.Error("second close rebound the reference")
	}
}

func TestClosureCloneClosesSource(t *testing.T) {
	slot := IntValue(7)
	source := NewClosure(Callable{Kind: CallableFunction, Fn: Function{ID: "f"}})
	source.Upvs = append(source.Upvs, &UpValue{Open: true, Valid: true, Ref: &slot})

	clone := source.Clone()

	if source.Upvs[0].Open {
		t.Error("source cell still open after clone")
	}
	if clone.Upvs[0].Open {
		t.Error("clone cell must be closed")
	}

	// The clone owns an independent copy.
	*source.Upvs[0].Ref = IntValue(8)
	if clone.Upvs[0].Ref.Int() != 7 {
		t.Errorf("clone cell = %d after mutating source, want 7", clone.Upvs[0].Ref.Int())
	}
}

func TestClosureUpvalueRangeCheck(t *testing.T) {
	c := NewClosure(Callable{Kind: CallableFunction})
	c.Upvs = append(c.Upvs, &UpValue{Valid: true})

	if c.Upvalue(0) == nil {
		t.Error("index 0 should resolve")
	}
	// The index must be strictly less than the count.
	if c.Upvalue(1) != nil {
		t.Error("index == count must not resolve")
	}
	if c.Upvalue(-1) != nil {
		t.Error("negative index must not resolve")
	}
}

func TestCallableSignature(t *testing.T) {
	script := Callable{Kind: CallableFunction, Fn: Function{ID: "main"}}
	if got := script.Signature(); got != "function main" {
		t.Errorf("script signature = %q", got)
	}
	native := Callable{Kind: CallableNative, NativeName: "print"}
	if got := native.Signature(); got != "function print" {
		t.Errorf("native signature = %q", got)
	}
}
