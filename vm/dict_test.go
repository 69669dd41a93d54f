package vm

import (
	"fmt"
	"testing"
)

func TestDictSetGet(t *testing.T) {
	d := NewDict()
	d.Set("answer", IntValue(42))

	got := d.Get("answer")
	if got == nil || got.Int() != 42 {
		t.Fatal("lookup of stored key failed")
	}
	if d.Get("missing") != nil {
		t.Error("lookup of missing key should return nil")
	}
}

func TestDictOverwrite(t *testing.T) {
	d := NewDict()
	d.Set("k", IntValue(1))
	d.Set("k", IntValue(2))

	if got := d.Get("k"); got.Int() != 2 {
		t.Errorf("value = %d, want 2", got.Int())
	}
	if d.Size() != 1 {
		t.Errorf("size = %d, want 1", d.Size())
	}
}

func TestDictCollisionsAndGrowth(t *testing.T) {
	// Far more keys than the initial capacity forces probing through
	// collisions and at least one table growth.
	d := NewDict()
	const n = 500
	for i := 0; i < n; i++ {
		d.Set(fmt.Sprintf("key-%d", i), IntValue(int32(i)))
	}

	if d.Size() != n {
		t.Fatalf("size = %d, want %d", d.Size(), n)
	}
	for i := 0; i < n; i++ {
		got := d.Get(fmt.Sprintf("key-%d", i))
		if got == nil {
			t.Fatalf("key-%d lost", i)
		}
		if got.Int() != int32(i) {
			t.Fatalf("key-%d = %d", i, got.Int())
		}
	}
	if d.Cap() <= DictCapacity {
		t.Errorf("cap = %d, expected growth past %d", d.Cap(), DictCapacity)
	}
}

func TestDictNilValueExcludedFromSize(t *testing.T) {
	d := NewDict()
	d.Set("a", IntValue(1))
	d.Set("b", IntValue(2))
	d.Set("a", NilValue())

	if d.Size() != 1 {
		t.Errorf("size = %d, want 1", d.Size())
	}
}

func TestDictCloneIsDeep(t *testing.T) {
	d := NewDict()
	arr := NewArray()
	arr.Set(0, IntValue(1))
	d.Set("list", ArrayValue(arr))

	clone := d.Clone()
	clone.Get("list").Array().Set(0, IntValue(9))

	if got := d.Get("list").Array().Get(0).Int(); got != 1 {
		t.Errorf("original = %d after mutating clone, want 1", got)
	}
}
