package graph

import "testing"

type item struct {
	id  uint64
	tag string
}

func TestQuery_FilterIsLazyUntilAll(t *testing.T) {
	evaluated := false
	q := Query[item]{eval: func() []item {
		evaluated = true
		return []item{{1, "a"}, {2, "b"}}
	}}
	filtered := q.Filter(func(i item) bool { return i.tag == "b" })
	if evaluated {
		t.Fatal("Filter should not evaluate the source chain immediately")
	}
	out := filtered.All()
	if !evaluated {
		t.Fatal("All() should force evaluation")
	}
	if len(out) != 1 || out[0].id != 2 {
		t.Errorf("Filter result = %v, want [{2 b}]", out)
	}
}

func TestQuery_Union(t *testing.T) {
	a := NewQuery([]item{{1, "a"}, {2, "b"}})
	b := NewQuery([]item{{2, "b"}, {3, "c"}})
	key := func(i item) uint64 { return i.id }

	out := a.Union(b, key).All()
	if len(out) != 3 {
		t.Fatalf("Union() = %v, want 3 distinct items", out)
	}
}

func TestQuery_Intersect(t *testing.T) {
	a := NewQuery([]item{{1, "a"}, {2, "b"}})
	b := NewQuery([]item{{2, "b"}, {3, "c"}})
	key := func(i item) uint64 { return i.id }

	out := a.Intersect(b, key).All()
	if len(out) != 1 || out[0].id != 2 {
		t.Errorf("Intersect() = %v, want [{2 b}]", out)
	}
}

func TestQuery_Difference(t *testing.T) {
	a := NewQuery([]item{{1, "a"}, {2, "b"}})
	b := NewQuery([]item{{2, "b"}})
	key := func(i item) uint64 { return i.id }

	out := a.Difference(b, key).All()
	if len(out) != 1 || out[0].id != 1 {
		t.Errorf("Difference() = %v, want [{1 a}]", out)
	}
}

func TestQuery_ChainedCombinators(t *testing.T) {
	src := NewQuery([]item{{1, "a"}, {2, "b"}, {3, "c"}, {4, "d"}})
	key := func(i item) uint64 { return i.id }

	out := src.
		Filter(func(i item) bool { return i.id%2 == 0 }).
		Union(NewQuery([]item{{5, "e"}}), key).
		All()

	if len(out) != 3 {
		t.Fatalf("chained query = %v, want 3 items", out)
	}
}
