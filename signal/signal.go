// Package signal owns a signal's value buffers and instance pool: the
// reserve/activate/steal policy, update/release/overflow callbacks, and
// the per-instance history storage, spec §4.5.
//
// Grounded on the teacher's core.Peer shape (mutex + configuration +
// observer map + callbacks in pkg/mcast/core/peer.go) adapted so that
// Peer's observer map (request UID -> waiting caller) becomes Signal's
// instance map (local id -> live instance), and Peer's callback-on-
// commit becomes Signal's callback-on-update/release/overflow.
package signal

import (
	"errors"
	"sync"

	"github.com/libmapper/libmapper-sub001/instance/idmap"
	"github.com/libmapper/libmapper-sub001/internal/herring/log"
	"github.com/libmapper/libmapper-sub001/internal/herring/metrics"
	"github.com/libmapper/libmapper-sub001/signal/buffer"
)

var (
	ErrInstanceOverflow = errors.New("signal: instance pool full and stealing disabled")
	ErrUnknownInstance  = errors.New("signal: no such instance")
)

type Direction int

const (
	DirIn Direction = iota
	DirOut
	DirAny
)

// EventMask selects which callback events a signal delivers, spec §3.
type EventMask uint8

const (
	EventUpdate         EventMask = 1 << iota
	EventInstNew
	EventRelUpstream
	EventRelDownstream
	EventInstOverflow
)

func (m EventMask) Has(bit EventMask) bool { return m&bit != 0 }

// StealPolicy decides which active instance is evicted when the pool
// is full and a new identity needs a slot, spec §4.5.
type StealPolicy int

const (
	StealNone StealPolicy = iota
	StealOldest
	StealNewest
)

// Status mirrors the instance status bitflags of spec §3.
type Status uint8

const (
	StatusReserved Status = 1 << iota
	StatusActive
	StatusNew
	StatusUpdated
	StatusReleasedUpstream
	StatusReleasedDownstream
	StatusOverflow
)

func (s Status) Has(bit Status) bool { return s&bit != 0 }

// Instance is one concurrent stream within a signal.
type Instance struct {
	Local     uint32
	Global    uint64
	HasGlobal bool
	Status    Status
	Buffer    *buffer.Buffer
	Vars      map[string][]float64 // instance-scoped expression state
	Muted     bool                 // persisted `muted = 1` assignment, across map evaluations

	// CallState holds the per-call-site memory stateful map expression
	// builtins (schmitt(), ema()) carry across evaluations, keyed by
	// ir.Token.CallSite.
	CallState map[int][]float64
}

func (i *Instance) Var(name string) []float64 {
	if i.Vars == nil {
		return nil
	}
	return i.Vars[name]
}

func (i *Instance) SetVar(name string, v []float64) {
	if i.Vars == nil {
		i.Vars = make(map[string][]float64)
	}
	i.Vars[name] = v
}

func (i *Instance) State(key int) ([]float64, bool) {
	if i.CallState == nil {
		return nil, false
	}
	v, ok := i.CallState[key]
	return v, ok
}

func (i *Instance) SetState(key int, v []float64) {
	if i.CallState == nil {
		i.CallState = make(map[int][]float64)
	}
	i.CallState[key] = v
}

type UpdateCallback func(sig *Signal, inst *Instance, vec []float64, time float64)
type EventCallback func(sig *Signal, inst *Instance, event EventMask)

// Signal is one named, typed, vector-valued, possibly multi-instance
// data port on a device, spec §3.
type Signal struct {
	mu sync.Mutex

	Name         string
	DeviceName   string
	GroupID      uint64 // device-group key shared by every signal on the same device, spec §4.2
	ID           uint64
	Dir          Direction
	VectorLength int
	ElemType     buffer.ElementType
	Unit         string
	Min, Max     []float64
	NumInstances int
	MaxHistory   int
	EventMask    EventMask
	Steal        StealPolicy

	instances map[uint32]*Instance
	order     []uint32 // activation order, oldest first — drives StealOldest
	nextLocal uint32

	ids *idmap.Table

	onUpdate UpdateCallback
	onEvent  EventCallback

	log     log.Logger
	metrics *metrics.Set
}

// New allocates a Signal with a pre-reserved pool of numInstances empty
// instances (spec §4.5: "instance pool of fixed size = declared
// num_instances"); further instances are allocated on demand as
// "reserved extras".
func New(name, deviceName string, groupID, id uint64, dir Direction, elem buffer.ElementType, vecLen, numInstances, maxHistory int, ids *idmap.Table, lg log.Logger, m *metrics.Set) *Signal {
	s := &Signal{
		Name: name, DeviceName: deviceName, GroupID: groupID, ID: id,
		Dir: dir, VectorLength: vecLen, ElemType: elem,
		NumInstances: numInstances, MaxHistory: maxHistory,
		EventMask: EventUpdate | EventInstNew | EventRelUpstream | EventRelDownstream | EventInstOverflow,
		instances: make(map[uint32]*Instance),
		ids:       ids, log: lg, metrics: m,
	}
	for i := 0; i < numInstances; i++ {
		s.nextLocal++
		s.instances[s.nextLocal] = &Instance{
			Local: s.nextLocal, Status: StatusReserved,
			Buffer: buffer.New(elem, vecLen, maxHistory),
		}
	}
	return s
}

func (s *Signal) SetCallbacks(onUpdate UpdateCallback, onEvent EventCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = onUpdate
	s.onEvent = onEvent
}

// ActiveInstances returns the instances currently StatusActive, for
// DimInstance reductions and for x.instance.count()-style queries.
func (s *Signal) ActiveInstances() []*Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Instance
	for _, local := range s.order {
		if inst := s.instances[local]; inst != nil && inst.Status.Has(StatusActive) {
			out = append(out, inst)
		}
	}
	return out
}

func (s *Signal) Find(local uint32) (*Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[local]
	return inst, ok
}

// SetValue implements spec §4.5's set_value: locate or activate the
// instance for local, write the value, advance the ring, mark UPDATED,
// and invoke the update callback if the event mask permits.
func (s *Signal) SetValue(local uint32, vec []float64, time float64) (*Instance, error) {
	s.mu.Lock()
	inst, err := s.activate(local)
	if err != nil {
		s.mu.Unlock()
		if err == ErrInstanceOverflow && s.EventMask.Has(EventInstOverflow) && s.onEvent != nil {
			s.onEvent(s, nil, EventInstOverflow)
		}
		return nil, err
	}
	inst.Buffer.Write(vec, time)
	isNew := !inst.Status.Has(StatusUpdated)
	inst.Status |= StatusActive | StatusUpdated
	inst.Status &^= StatusNew
	cb := s.onUpdate
	mask := s.EventMask
	s.mu.Unlock()

	if isNew && mask.Has(EventInstNew) && s.onEvent != nil {
		s.onEvent(s, inst, EventInstNew)
	}
	if mask.Has(EventUpdate) && cb != nil {
		cb(s, inst, vec, time)
	}
	return inst, nil
}

// activate must be called with s.mu held. It implements the policy of
// spec §4.5: reuse the pool instance that already has this local id;
// otherwise take a RESERVED or inactive slot; otherwise steal per
// s.Steal; otherwise overflow. The id-map is not consulted here.
func (s *Signal) activate(local uint32) (*Instance, error) {
	if inst, ok := s.instances[local]; ok {
		if !inst.Status.Has(StatusActive) {
			inst.Status |= StatusNew
			s.order = append(s.order, local)
		}
		return inst, nil
	}

	for _, candidate := range s.instances {
		if candidate.Status == StatusReserved || !candidate.Status.Has(StatusActive) {
			delete(s.instances, candidate.Local)
			inst := &Instance{Local: local, Status: StatusNew, Buffer: candidate.Buffer}
			s.instances[local] = inst
			s.order = append(s.order, local)
			return inst, nil
		}
	}

	if s.Steal == StealNone {
		return nil, ErrInstanceOverflow
	}
	var victim uint32
	if s.Steal == StealOldest {
		victim = s.order[0]
		s.order = s.order[1:]
	} else {
		victim = s.order[len(s.order)-1]
		s.order = s.order[:len(s.order)-1]
	}
	old := s.instances[victim]
	delete(s.instances, victim)
	inst := &Instance{Local: local, Status: StatusNew | StatusOverflow, Buffer: old.Buffer}
	s.instances[local] = inst
	s.order = append(s.order, local)
	return inst, nil
}

// ReleaseInstance implements spec §4.5's release_inst: clears the
// active flag, fires REL_UPSTRM locally, and decrements the id-map
// refcount so a remote release can be scheduled by the caller (the
// router owns propagating this downstream, since only it knows which
// maps use this signal as a source).
func (s *Signal) ReleaseInstance(local uint32) error {
	s.mu.Lock()
	inst, ok := s.instances[local]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownInstance
	}
	inst.Status &^= StatusActive
	inst.Status |= StatusReleasedUpstream
	for i, l := range s.order {
		if l == local {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if inst.HasGlobal {
		s.ids.DecrementLocal(s.GroupID, local)
	}
	cb := s.onEvent
	mask := s.EventMask
	s.mu.Unlock()

	if mask.Has(EventRelUpstream) && cb != nil {
		cb(s, inst, EventRelUpstream)
	}
	return nil
}
