// Package idmap implements the bidirectional local/global instance id
// table described in spec §4.2: decouples a producer's locally chosen
// 32-bit instance id from the 64-bit id remote peers agree on.
//
// Grounded on the teacher's Memo/PreviousSet shape (core/peer.go:
// "received *Memo", a small mutex-guarded map keyed by request identity)
// generalized from "timestamps received per request" to "local/global id
// pairs with refcounts".
package idmap

import (
	"fmt"
	"sync"
)

// Key identifies the (device_group, local_id) scope a local id is unique
// within, per spec §4.2: "signals belonging to the same device share a
// group so that an instance born on one signal can be forwarded on
// another with identity preserved."
type Key struct {
	Group uint64 // device-local group id, shared by all signals of one device
	Local uint32
}

// Entry is one id-map record, spec §3.
type Entry struct {
	Local         uint32
	Global        uint64
	RefcountLocal int32
	RefcountGlobal int32

	// Indirect points at another Entry this one forwards through, used
	// when an instance born on one signal is re-exposed on another
	// signal of the same device (spec §4.2's "forwarded ... with
	// identity preserved").
	Indirect *Entry
}

func (e *Entry) String() string {
	return fmt.Sprintf("idmap.Entry{local=%d global=%d refL=%d refG=%d}",
		e.Local, e.Global, e.RefcountLocal, e.RefcountGlobal)
}

// Table is the id-map table for one device.
type Table struct {
	mu       sync.Mutex
	byLocal  map[Key]*Entry
	byGlobal map[uint64]*Entry
}

func NewTable() *Table {
	return &Table{
		byLocal:  make(map[Key]*Entry),
		byGlobal: make(map[uint64]*Entry),
	}
}

// Add inserts a new entry relating local (scoped by group) to global,
// with refcounts of 1 each. If the pair already exists, its refcounts
// are incremented instead (idempotent re-activation of the same
// instance).
func (t *Table) Add(group uint64, local uint32, global uint64) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := Key{Group: group, Local: local}
	if e, ok := t.byLocal[key]; ok && e.Global == global {
		e.RefcountLocal++
		e.RefcountGlobal++
		return e
	}

	e := &Entry{Local: local, Global: global, RefcountLocal: 1, RefcountGlobal: 1}
	t.byLocal[key] = e
	t.byGlobal[global] = e
	return e
}

// FindByLocal looks up an entry by (device group, local id).
func (t *Table) FindByLocal(group uint64, local uint32) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byLocal[Key{Group: group, Local: local}]
	return e, ok
}

// FindByGlobal looks up an entry by its globally unique id.
func (t *Table) FindByGlobal(global uint64) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byGlobal[global]
	return e, ok
}

// DecrementLocal drops the local refcount; once both refcounts reach
// zero the entry is freed, per spec §4.2/§3 ("Released entries are
// retained until both refcounts reach zero").
func (t *Table) DecrementLocal(group uint64, local uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := Key{Group: group, Local: local}
	e, ok := t.byLocal[key]
	if !ok {
		return
	}
	e.RefcountLocal--
	t.maybeFree(key, e)
}

// DecrementGlobal drops the global refcount by the global id.
func (t *Table) DecrementGlobal(global uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byGlobal[global]
	if !ok {
		return
	}
	e.RefcountGlobal--
	t.maybeFree(Key{Local: e.Local}, e)
}

// maybeFree must be called with mu held. It removes e from byGlobal
// unconditionally when freeing (the caller may not know the exact group
// key for byLocal, so we do a short scan — the table is expected to
// hold at most a handful of live entries per signal).
func (t *Table) maybeFree(_ Key, e *Entry) {
	if e.RefcountLocal > 0 || e.RefcountGlobal > 0 {
		return
	}
	delete(t.byGlobal, e.Global)
	for k, v := range t.byLocal {
		if v == e {
			delete(t.byLocal, k)
			break
		}
	}
}

// Len reports the number of live entries, for tests and instance-count
// reductions that need an id-map-backed view.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byGlobal)
}
