package vm

import "testing"

func TestArrayGetOutOfRange(t *testing.T) {
	arr := NewArray()
	if arr.Get(ArrayCapacity) != nil {
		t.Error("out-of-range get should return nil")
	}
	if arr.Get(-1) != nil {
		t.Error("negative get should return nil")
	}
}

func TestArrayGrowth(t *testing.T) {
	arr := NewArray()
	arr.Set(ArrayCapacity*2, IntValue(7))

	if arr.Cap() < ArrayCapacity*2+1 {
		t.Errorf("cap = %d, want at least %d", arr.Cap(), ArrayCapacity*2+1)
	}
	if got := arr.Get(ArrayCapacity * 2); got == nil || got.Int() != 7 {
		t.Error("value lost across growth")
	}
}

func TestArrayGrowthPreservesContents(t *testing.T) {
	arr := NewArray()
	for i := 0; i < ArrayCapacity; i++ {
		arr.Set(i, IntValue(int32(i)))
	}
	arr.Set(ArrayCapacity, IntValue(999))
	for i := 0; i < ArrayCapacity; i++ {
		if got := arr.Get(i); got.Int() != int32(i) {
			t.Fatalf("slot %d = %d after growth, want %d", i, got.Int(), i)
		}
	}
}

func TestArrayLogicalSize(t *testing.T) {
	arr := NewArray()
	if arr.Size() != 0 {
		t.Errorf("empty size = %d", arr.Size())
	}

	arr.Set(0, IntValue(1))
	arr.Set(5, IntValue(2)) // holes do not count
	if arr.Size() != 2 {
		t.Errorf("size = %d, want 2", arr.Size())
	}

	arr.Set(0, NilValue()) // writing Nil removes
	if arr.Size() != 1 {
		t.Errorf("size = %d after nil write, want 1", arr.Size())
	}

	arr.Set(5, IntValue(3)) // overwrite keeps the count
	if arr.Size() != 1 {
		t.Errorf("size = %d after overwrite, want 1", arr.Size())
	}
}

func TestArrayCloneIsDeep(t *testing.T) {
	arr := NewArray()
	arr.Set(0, StringValue(NewString("a")))

	clone := arr.Clone()
	clone.Get(0).Str().Set(0, 'b')

	if got := arr.Get(0).Str().String(); got != "a" {
		t.Errorf("original = %q after mutating clone", got)
	}
	if clone.Size() != arr.Size() {
		t.Error("clone size differs")
	}
}
