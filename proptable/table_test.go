package proptable

import (
	"errors"
	"testing"
)

func TestTable_SetUnknownKeyAlwaysAccepted(t *testing.T) {
	tbl := NewTable()
	n, err := tbl.Set("custom_thing", StringValue("hello"), true)
	if err != nil || n != 1 {
		t.Fatalf("Set on unknown key = %d, %v, want 1, nil", n, err)
	}
	got, ok := tbl.Get("custom_thing")
	if !ok || got.Str != "hello" {
		t.Errorf("Get(custom_thing) = %v, %v", got, ok)
	}
}

func TestTable_SetRespectsModifiability(t *testing.T) {
	tbl := NewTable()
	tbl.Define("ro", Int32Value(1), ModifiableByLocal)

	if _, err := tbl.Set("ro", Int32Value(2), true); !errors.Is(err, ErrNotModifiable) {
		t.Errorf("remote Set on a local-only record: got %v, want ErrNotModifiable", err)
	}
	if n, err := tbl.Set("ro", Int32Value(2), false); err != nil || n != 1 {
		t.Errorf("local Set on a local-only record = %d, %v, want 1, nil", n, err)
	}
}

func TestTable_SetNoopOnUnchangedValue(t *testing.T) {
	tbl := NewTable()
	tbl.Define("x", Int32Value(5), ModifiableByRemote|ModifiableByLocal)
	n, err := tbl.Set("x", Int32Value(5), true)
	if err != nil || n != 0 {
		t.Errorf("Set with an equal value = %d, %v, want 0, nil", n, err)
	}
}

func TestTable_ExistsVsDoesNotExist(t *testing.T) {
	tbl := NewTable()
	tbl.Define("zero", Int32Value(0), ModifiableByLocal)

	if !tbl.Matches("zero", Exists, Value{}) {
		t.Error("a present record holding a zero value should still be EXISTS")
	}
	if tbl.Matches("missing", Exists, Value{}) {
		t.Error("a never-defined key should not be EXISTS")
	}
	if !tbl.Matches("missing", DoesNotExist, Value{}) {
		t.Error("a never-defined key should be DOES_NOT_EXIST")
	}
}

func TestTable_RemoveDropsRecordEntirely(t *testing.T) {
	tbl := NewTable()
	tbl.Define("k", Int32Value(1), ModifiableByLocal)
	tbl.Remove("k")
	if _, ok := tbl.Get("k"); ok {
		t.Error("Get after Remove should report absent")
	}
	if tbl.Matches("k", Exists, Value{}) {
		t.Error("Remove should make the key DOES_NOT_EXIST, not just zero")
	}
}

func TestTable_DirtyTracksUnflushedWrites(t *testing.T) {
	tbl := NewTable()
	tbl.Define("k", Int32Value(1), ModifiableByRemote|ModifiableByLocal)
	if tbl.Dirty() {
		t.Error("a freshly defined table should not start Dirty")
	}
	tbl.Set("k", Int32Value(2), true)
	if !tbl.Dirty() {
		t.Error("a changed value should mark the table Dirty")
	}
	tbl.ClearDirty()
	if tbl.Dirty() {
		t.Error("ClearDirty should reset the Dirty flag")
	}
}

func TestTable_KeysOrdersKnownBeforeUnknown(t *testing.T) {
	tbl := NewTable()
	tbl.Define("z_custom", StringValue("a"), ModifiableByLocal)
	tbl.Define("a_custom", StringValue("b"), ModifiableByLocal)
	keys := tbl.Keys()
	if len(keys) != 2 || keys[0] != "z_custom" || keys[1] != "a_custom" {
		t.Errorf("Keys() = %v, want insertion order for unknown keys: [z_custom a_custom]", keys)
	}
}

func TestTable_Clone(t *testing.T) {
	tbl := NewTable()
	tbl.Define("k", Int32Value(1), ModifiableByLocal)
	clone := tbl.Clone()
	clone.Set("k", Int32Value(2), false)

	orig, _ := tbl.Get("k")
	cloned, _ := clone.Get("k")
	if orig.Int32s[0] != 1 {
		t.Error("mutating the clone should not affect the original table")
	}
	if cloned.Int32s[0] != 2 {
		t.Error("clone's own mutation should stick")
	}
}

func TestCompareOps_Numeric(t *testing.T) {
	tbl := NewTable()
	tbl.Define("n", Float64Value(5), ModifiableByLocal)

	cases := []struct {
		op   CompareOp
		want float64
		ok   bool
	}{
		{LT, 10, true}, {LT, 5, false},
		{LTE, 5, true}, {LTE, 4, false},
		{GT, 1, true}, {GT, 5, false},
		{GTE, 5, true}, {GTE, 6, false},
	}
	for _, c := range cases {
		if got := tbl.Matches("n", c.op, Float64Value(c.want)); got != c.ok {
			t.Errorf("Matches(n=5, op=%v, %v) = %v, want %v", c.op, c.want, got, c.ok)
		}
	}
}

func TestCompareOps_AnyAll(t *testing.T) {
	tbl := NewTable()
	tbl.Define("vec", Int32VectorValue([]int32{1, 2, 3}), ModifiableByLocal)

	if !tbl.Matches("vec", Any, Int32Value(2)) {
		t.Error("Any should match when one element equals want")
	}
	if tbl.Matches("vec", Any, Int32Value(9)) {
		t.Error("Any should not match when no element equals want")
	}
	if tbl.Matches("vec", All, Int32Value(1)) {
		t.Error("All should fail when not every element equals want")
	}

	tbl.Define("uniform", Int32VectorValue([]int32{4, 4, 4}), ModifiableByLocal)
	if !tbl.Matches("uniform", All, Int32Value(4)) {
		t.Error("All should match when every element equals want")
	}
}

func TestValue_Equal(t *testing.T) {
	if !Float64Value(1.5).Equal(Float64Value(1.5)) {
		t.Error("identical Float64Values should be Equal")
	}
	if Float64Value(1.5).Equal(Int32Value(1)) {
		t.Error("values of different Type should never be Equal")
	}
	a := Float64VectorValue([]float64{1, 2, 3})
	b := Float64VectorValue([]float64{1, 2, 3})
	c := Float64VectorValue([]float64{1, 2, 4})
	if !a.Equal(b) {
		t.Error("equal vectors should compare Equal")
	}
	if a.Equal(c) {
		t.Error("differing vectors should not compare Equal")
	}
}
