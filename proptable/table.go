package proptable

import (
	"errors"
	"fmt"

	"github.com/libmapper/libmapper-sub001/wire"
)

// Flag bits carried by every record, spec §4.3.
type Flag uint8

const (
	ModifiableByRemote Flag = 1 << iota
	ModifiableByLocal
	Indirect
	Dirty
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

var (
	ErrNotModifiable = errors.New("proptable: record is not modifiable by the requested origin")
	ErrUnknownKey    = errors.New("proptable: unknown key")
)

type record struct {
	key     string
	value   Value
	flags   Flag
	present bool // distinguishes "has a record" from a zero-value Value living in the slice transiently
}

// Table is the ordered map from symbolic or string key to typed value
// described in spec §4.3. Known symbolic properties (wire.KnownProperties)
// iterate first, in their canonical order, then unknown string-named
// ones in insertion order.
type Table struct {
	records map[string]*record
	order   []string // insertion order of unknown keys only
}

func NewTable() *Table {
	return &Table{records: make(map[string]*record)}
}

// Define creates or overwrites a record's value and flags unconditionally,
// bypassing the ModifiableByRemote/ModifiableByLocal checks — used by the
// owning object itself (a Device setting its own Signal's @len, say), not
// by a handler processing a remote request.
func (t *Table) Define(key string, value Value, flags Flag) {
	if r, ok := t.records[key]; ok {
		r.value = value
		r.flags = flags
		r.present = true
		return
	}
	t.records[key] = &record{key: key, value: value, flags: flags, present: true}
	if !isKnown(key) {
		t.order = append(t.order, key)
	}
}

// Set updates an existing record's value, honoring the modifiability
// flags. remote indicates whether the write originates from a network
// message (checked against ModifiableByRemote) or local code (checked
// against ModifiableByLocal). Returns the count of modified records (0
// or 1) per spec §4.3 — 0 when the new value equals the old one; a
// missing key is created and counts as 1.
func (t *Table) Set(key string, value Value, remote bool) (int, error) {
	r, ok := t.records[key]
	if !ok {
		// Unknown keys are always accepted and round-tripped verbatim,
		// per spec §6 ("unknown @key values are retained verbatim").
		t.Define(key, value, ModifiableByRemote|ModifiableByLocal)
		return 1, nil
	}

	required := ModifiableByLocal
	if remote {
		required = ModifiableByRemote
	}
	if !r.flags.Has(required) {
		return 0, fmt.Errorf("%w: %s", ErrNotModifiable, key)
	}

	if r.present && r.value.Equal(value) {
		return 0, nil
	}

	r.value = value
	r.present = true
	r.flags |= Dirty
	return 1, nil
}

// Get returns the value stored at key and whether it is present. This is
// the sole exposure of EXISTS vs DOES_NOT_EXIST: a missing record is
// DOES_NOT_EXIST, and a present record whose value is the type's zero
// value is still EXISTS, per the Open Question resolution in DESIGN.md.
func (t *Table) Get(key string) (Value, bool) {
	r, ok := t.records[key]
	if !ok || !r.present {
		return Value{}, false
	}
	return r.value, true
}

// Remove deletes a record outright (distinct from setting to a zero
// value, which still leaves it EXISTS).
func (t *Table) Remove(key string) {
	delete(t.records, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// ClearDirty resets the Dirty flag on every record, called after a push
// to the network.
func (t *Table) ClearDirty() {
	for _, r := range t.records {
		r.flags &^= Dirty
	}
}

// Dirty reports whether any record needs a network push.
func (t *Table) Dirty() bool {
	for _, r := range t.records {
		if r.flags.Has(Dirty) {
			return true
		}
	}
	return false
}

// Keys returns every present key, known symbolic properties first (in
// their canonical order), then unknown string-named keys in insertion
// order — spec §4.3's ordering requirement.
func (t *Table) Keys() []string {
	var out []string
	for _, k := range wire.KnownProperties {
		if r, ok := t.records[k]; ok && r.present {
			out = append(out, k)
		}
	}
	for _, k := range t.order {
		if r, ok := t.records[k]; ok && r.present {
			out = append(out, k)
		}
	}
	return out
}

func isKnown(key string) bool {
	for _, k := range wire.KnownProperties {
		if k == key {
			return true
		}
	}
	return false
}

// Clone returns a deep-enough copy for safe concurrent read while the
// original table continues to mutate (used when a Graph snapshot hands
// a Device's properties to a subscriber callback).
func (t *Table) Clone() *Table {
	out := NewTable()
	for _, k := range t.Keys() {
		v, _ := t.Get(k)
		r := t.records[k]
		out.Define(k, v, r.flags)
	}
	return out
}
