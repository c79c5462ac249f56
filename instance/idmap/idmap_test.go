package idmap

import "testing"

func TestTable_AddAndFind(t *testing.T) {
	tbl := NewTable()
	e := tbl.Add(1, 5, 1001)

	byLocal, ok := tbl.FindByLocal(1, 5)
	if !ok || byLocal != e {
		t.Fatalf("FindByLocal = %v, %v, want the same entry", byLocal, ok)
	}
	byGlobal, ok := tbl.FindByGlobal(1001)
	if !ok || byGlobal != e {
		t.Fatalf("FindByGlobal = %v, %v, want the same entry", byGlobal, ok)
	}
}

func TestTable_AddIsIdempotentForSamePair(t *testing.T) {
	tbl := NewTable()
	tbl.Add(1, 5, 1001)
	e := tbl.Add(1, 5, 1001)
	if e.RefcountLocal != 2 || e.RefcountGlobal != 2 {
		t.Errorf("re-Add of the same pair should bump both refcounts, got local=%d global=%d", e.RefcountLocal, e.RefcountGlobal)
	}
}

func TestTable_DecrementLocalFreesAtZero(t *testing.T) {
	tbl := NewTable()
	tbl.Add(1, 5, 1001)
	tbl.DecrementGlobal(1001)
	tbl.DecrementLocal(1, 5)

	if _, ok := tbl.FindByLocal(1, 5); ok {
		t.Error("entry should be freed once both refcounts reach zero")
	}
	if tbl.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after the only entry is freed", tbl.Len())
	}
}

func TestTable_DifferentGroupsAreIndependent(t *testing.T) {
	tbl := NewTable()
	tbl.Add(1, 5, 1001)
	tbl.Add(2, 5, 2001)

	a, _ := tbl.FindByLocal(1, 5)
	b, _ := tbl.FindByLocal(2, 5)
	if a == b {
		t.Error("the same local id in different groups should resolve to distinct entries")
	}
	if tbl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tbl.Len())
	}
}

func TestTable_DecrementUnknownIsNoop(t *testing.T) {
	tbl := NewTable()
	tbl.DecrementLocal(9, 9)
	tbl.DecrementGlobal(12345)
	if tbl.Len() != 0 {
		t.Error("decrementing an unknown entry should not panic or create state")
	}
}
