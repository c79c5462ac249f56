// Package graph implements the replicated index of devices, signals,
// maps, and links seen on the bus, spec §4.8: add_or_update/remove
// operations with change callbacks, id/name/property queries, lazy list
// combinators, and lease-renewing subscriptions.
//
// Grounded on the teacher's GroupState/Unity.state role ("holds
// information for the group", referenced throughout protocol.go),
// scaled from one list of Nodes to four lists of replicated objects.
package graph

// Query is a deferred, composable view over a slice of T: Filter,
// Union, Intersect, and Difference each return a new Query without
// touching the underlying data; only All (or another terminal
// operation) walks the chain, spec §4.8's "queries return lazy lists".
type Query[T any] struct {
	eval func() []T
}

// NewQuery wraps an already-materialized slice as the root of a chain.
func NewQuery[T any](items []T) Query[T] {
	return Query[T]{eval: func() []T { return items }}
}

// All forces evaluation of the whole chain.
func (q Query[T]) All() []T {
	if q.eval == nil {
		return nil
	}
	return q.eval()
}

func (q Query[T]) Filter(pred func(T) bool) Query[T] {
	return Query[T]{eval: func() []T {
		src := q.All()
		out := make([]T, 0, len(src))
		for _, x := range src {
			if pred(x) {
				out = append(out, x)
			}
		}
		return out
	}}
}

// Union returns items present in either chain, deduplicated by key.
func (q Query[T]) Union(other Query[T], key func(T) uint64) Query[T] {
	return Query[T]{eval: func() []T {
		seen := make(map[uint64]bool)
		var out []T
		for _, x := range q.All() {
			if !seen[key(x)] {
				seen[key(x)] = true
				out = append(out, x)
			}
		}
		for _, x := range other.All() {
			if !seen[key(x)] {
				seen[key(x)] = true
				out = append(out, x)
			}
		}
		return out
	}}
}

// Intersect returns items present in both chains, keyed by key.
func (q Query[T]) Intersect(other Query[T], key func(T) uint64) Query[T] {
	return Query[T]{eval: func() []T {
		present := make(map[uint64]bool)
		for _, x := range other.All() {
			present[key(x)] = true
		}
		var out []T
		for _, x := range q.All() {
			if present[key(x)] {
				out = append(out, x)
			}
		}
		return out
	}}
}

// Difference returns items in q not present in other, keyed by key.
func (q Query[T]) Difference(other Query[T], key func(T) uint64) Query[T] {
	return Query[T]{eval: func() []T {
		exclude := make(map[uint64]bool)
		for _, x := range other.All() {
			exclude[key(x)] = true
		}
		var out []T
		for _, x := range q.All() {
			if !exclude[key(x)] {
				out = append(out, x)
			}
		}
		return out
	}}
}
