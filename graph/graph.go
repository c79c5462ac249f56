package graph

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/libmapper/libmapper-sub001/internal/herring/log"
	"github.com/libmapper/libmapper-sub001/internal/herring/metrics"
	"github.com/libmapper/libmapper-sub001/link"
	"github.com/libmapper/libmapper-sub001/proptable"
	"github.com/libmapper/libmapper-sub001/routemap"
)

// EventKind tags what happened to an object in a ChangeEvent.
type EventKind int

const (
	Added EventKind = iota
	Modified
	Removed
)

// ObjectKind tags which of the four replicated lists an event concerns.
type ObjectKind int

const (
	KindDevice ObjectKind = iota
	KindSignal
	KindMap
	KindLink
)

type ChangeEvent struct {
	Kind   EventKind
	Object ObjectKind
	ID     uint64
}

type ChangeCallback func(ChangeEvent)

// DeviceRecord mirrors spec §3's Device plus the §3.1 supplement
// (ordinal, subscribers, random_id tiebreaker).
type DeviceRecord struct {
	ID         uint64
	Name       string
	Host       string
	AdminPort  int
	DataPort   int
	Ordinal    int
	RandomID   uint32
	Props      *proptable.Table
	Version    int
	LastSynced float64
	Subscribed bool
	Subscribers map[string]bool
	Expired    bool
}

type SignalRecord struct {
	ID       uint64
	Device   string
	Name     string
	Props    *proptable.Table
}

type MapRecord struct {
	ID  uint64
	Map *routemap.Map
}

type LinkRecord struct {
	ID   uint64
	Link *link.Link
}

// Graph is the replicated index of every known device, signal, map, and
// link seen on the bus, spec §4.8.
type Graph struct {
	mu sync.Mutex

	devices map[uint64]*DeviceRecord
	signals map[uint64]*SignalRecord
	maps    map[uint64]*MapRecord
	links   map[uint64]*LinkRecord

	deviceByName map[string]uint64

	callbacks []ChangeCallback
	subs      []*Subscription

	TimeoutSec float64

	log     log.Logger
	metrics *metrics.Set
}

func New(timeoutSec float64, lg log.Logger, m *metrics.Set) *Graph {
	return &Graph{
		devices: make(map[uint64]*DeviceRecord), signals: make(map[uint64]*SignalRecord),
		maps: make(map[uint64]*MapRecord), links: make(map[uint64]*LinkRecord),
		deviceByName: make(map[string]uint64), TimeoutSec: timeoutSec,
		log: lg, metrics: m,
	}
}

func (g *Graph) OnChange(cb ChangeCallback) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callbacks = append(g.callbacks, cb)
}

func (g *Graph) fire(ev ChangeEvent) {
	for _, cb := range g.callbacks {
		cb(ev)
	}
}

// AddOrUpdateDevice returns the existing record if id matches (applying
// any changed properties and firing Modified), or allocates a new one
// and fires Added, spec §4.8.
func (g *Graph) AddOrUpdateDevice(id uint64, name, host string, adminPort, dataPort int, props map[string]proptable.Value) *DeviceRecord {
	g.mu.Lock()
	rec, existed := g.devices[id]
	if !existed {
		rec = &DeviceRecord{ID: id, Name: name, Host: host, AdminPort: adminPort, DataPort: dataPort,
			Props: proptable.NewTable(), Subscribers: make(map[string]bool)}
		g.devices[id] = rec
		g.deviceByName[name] = id
	}
	changed := applyProps(rec.Props, props)
	rec.Expired = false
	g.mu.Unlock()

	if !existed {
		g.fire(ChangeEvent{Kind: Added, Object: KindDevice, ID: id})
	} else if changed > 0 {
		g.fire(ChangeEvent{Kind: Modified, Object: KindDevice, ID: id})
	}
	return rec
}

func (g *Graph) RemoveDevice(id uint64) {
	g.mu.Lock()
	rec, ok := g.devices[id]
	if ok {
		delete(g.devices, id)
		delete(g.deviceByName, rec.Name)
	}
	g.mu.Unlock()
	if ok {
		g.fire(ChangeEvent{Kind: Removed, Object: KindDevice, ID: id})
	}
}

func (g *Graph) DeviceByID(id uint64) (*DeviceRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.devices[id]
	return rec, ok
}

func (g *Graph) DeviceByName(name string) (*DeviceRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.deviceByName[name]
	if !ok {
		return nil, false
	}
	return g.devices[id], true
}

// Devices returns a lazy Query over every device currently known.
func (g *Graph) Devices() Query[*DeviceRecord] {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*DeviceRecord, 0, len(g.devices))
	for _, d := range g.devices {
		out = append(out, d)
	}
	return NewQuery(out)
}

// DevicesWhere filters by a property comparison, spec §4.8's
// EQ/NEQ/LT/LTE/GT/GTE/EXISTS/DOES_NOT_EXIST/ANY/ALL operators.
func (g *Graph) DevicesWhere(key string, op proptable.CompareOp, want proptable.Value) Query[*DeviceRecord] {
	return g.Devices().Filter(func(d *DeviceRecord) bool { return d.Props.Matches(key, op, want) })
}

func (g *Graph) AddOrUpdateSignal(id uint64, device, name string, props map[string]proptable.Value) *SignalRecord {
	g.mu.Lock()
	rec, existed := g.signals[id]
	if !existed {
		rec = &SignalRecord{ID: id, Device: device, Name: name, Props: proptable.NewTable()}
		g.signals[id] = rec
	}
	changed := applyProps(rec.Props, props)
	g.mu.Unlock()

	if !existed {
		g.fire(ChangeEvent{Kind: Added, Object: KindSignal, ID: id})
	} else if changed > 0 {
		g.fire(ChangeEvent{Kind: Modified, Object: KindSignal, ID: id})
	}
	return rec
}

func (g *Graph) RemoveSignal(id uint64) {
	g.mu.Lock()
	_, ok := g.signals[id]
	delete(g.signals, id)
	g.mu.Unlock()
	if ok {
		g.fire(ChangeEvent{Kind: Removed, Object: KindSignal, ID: id})
	}
}

func (g *Graph) Signals() Query[*SignalRecord] {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*SignalRecord, 0, len(g.signals))
	for _, s := range g.signals {
		out = append(out, s)
	}
	return NewQuery(out)
}

func (g *Graph) AddMap(id uint64, m *routemap.Map) *MapRecord {
	g.mu.Lock()
	rec, existed := g.maps[id]
	if !existed {
		rec = &MapRecord{ID: id, Map: m}
		g.maps[id] = rec
	}
	g.mu.Unlock()
	if !existed {
		g.fire(ChangeEvent{Kind: Added, Object: KindMap, ID: id})
	} else {
		g.fire(ChangeEvent{Kind: Modified, Object: KindMap, ID: id})
	}
	return rec
}

func (g *Graph) RemoveMap(id uint64) {
	g.mu.Lock()
	_, ok := g.maps[id]
	delete(g.maps, id)
	g.mu.Unlock()
	if ok {
		g.fire(ChangeEvent{Kind: Removed, Object: KindMap, ID: id})
	}
}

func (g *Graph) Maps() Query[*MapRecord] {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*MapRecord, 0, len(g.maps))
	for _, m := range g.maps {
		out = append(out, m)
	}
	return NewQuery(out)
}

func (g *Graph) AddLink(id uint64, l *link.Link) *LinkRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, existed := g.links[id]
	if !existed {
		rec = &LinkRecord{ID: id, Link: l}
		g.links[id] = rec
	}
	return rec
}

// RemoveLinkIfUnused tears a link down once its refcount reaches zero,
// spec §4.7 ("the last map's removal tears the link down").
func (g *Graph) RemoveLinkIfUnused(id uint64) {
	g.mu.Lock()
	rec, ok := g.links[id]
	if ok && rec.Link.Refcount() <= 0 {
		delete(g.links, id)
	} else {
		ok = false
	}
	g.mu.Unlock()
	if ok {
		g.fire(ChangeEvent{Kind: Removed, Object: KindLink, ID: id})
	}
}

// Flush marks EXPIRED (via ExpireDevice) every device not heard from
// within timeout; the records stay in the graph. Sweep is Flush with
// g.TimeoutSec.
func (g *Graph) Flush(now, timeout float64) {
	var expired []uint64
	g.mu.Lock()
	for id, d := range g.devices {
		if now-d.LastSynced > timeout {
			expired = append(expired, id)
		}
	}
	g.mu.Unlock()
	for _, id := range expired {
		g.ExpireDevice(id)
	}
}

// Sweep marks devices EXPIRED if no /sync has been heard within
// g.TimeoutSec, the periodic bookkeeping spec §4.9 describes.
func (g *Graph) Sweep(now float64) {
	g.Flush(now, g.TimeoutSec)
}

func (g *Graph) ExpireDevice(id uint64) {
	g.mu.Lock()
	rec, ok := g.devices[id]
	if ok {
		rec.Expired = true
	}
	g.mu.Unlock()
	if ok {
		g.fire(ChangeEvent{Kind: Modified, Object: KindDevice, ID: id})
	}
}

func (g *Graph) NoteSync(id uint64, now float64) {
	g.mu.Lock()
	if rec, ok := g.devices[id]; ok {
		rec.LastSynced = now
		rec.Expired = false
	}
	g.mu.Unlock()
}

func applyProps(t *proptable.Table, props map[string]proptable.Value) int {
	changed := 0
	for k, v := range props {
		n, err := t.Set(k, v, true)
		if err == nil {
			changed += n
		}
	}
	return changed
}

// Subscription is one outstanding /subscribe lease, spec §4.8.
type Subscription struct {
	ID           string
	Device       string
	Flags        int
	LeaseSeconds float64
	ExpiresAt    float64
	AutoRenew    bool
}

// Subscribe registers a lease for device, spec §4.8: "auto-renews
// (caller may request lease=-1) within ten seconds of expiry".
func (g *Graph) Subscribe(device string, flags int, leaseSeconds, now float64) *Subscription {
	sub := &Subscription{
		ID: uuid.NewString(), Device: device, Flags: flags,
		LeaseSeconds: leaseSeconds, AutoRenew: leaseSeconds < 0,
	}
	if leaseSeconds < 0 {
		sub.ExpiresAt = now + 3600 // auto-renewing leases still get a bookkeeping horizon
	} else {
		sub.ExpiresAt = now + leaseSeconds
	}
	g.mu.Lock()
	g.subs = append(g.subs, sub)
	g.mu.Unlock()
	return sub
}

// DueForRenewal returns subscriptions within 10 seconds of expiry that
// are flagged for auto-renewal.
func (g *Graph) DueForRenewal(now float64) []*Subscription {
	g.mu.Lock()
	defer g.mu.Unlock()
	var due []*Subscription
	for _, s := range g.subs {
		if s.AutoRenew && s.ExpiresAt-now <= 10 {
			due = append(due, s)
		}
	}
	return due
}

// RenewAll fans the /subscribe re-send out to every due subscription
// concurrently via errgroup, per SPEC_FULL.md's DOMAIN STACK wiring.
func (g *Graph) RenewAll(ctx context.Context, now float64, send func(ctx context.Context, sub *Subscription) error) error {
	due := g.DueForRenewal(now)
	if len(due) == 0 {
		return nil
	}
	eg, ctx := errgroup.WithContext(ctx)
	for _, sub := range due {
		sub := sub
		eg.Go(func() error {
			if err := send(ctx, sub); err != nil {
				return err
			}
			g.mu.Lock()
			sub.ExpiresAt = now + 3600
			g.mu.Unlock()
			return nil
		})
	}
	return eg.Wait()
}

// AddSubscriber records that subscriber wants deltas pushed for the
// device named by id, the subscribed-to side of spec §4.8's handling
// of an incoming /<device>/subscribe message.
func (g *Graph) AddSubscriber(id uint64, subscriber string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.devices[id]; ok {
		rec.Subscribers[subscriber] = true
		rec.Subscribed = true
	}
}

// RemoveSubscriber drops subscriber from id's subscriber set, spec
// §4.8's handling of an incoming /<device>/unsubscribe.
func (g *Graph) RemoveSubscriber(id uint64, subscriber string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.devices[id]; ok {
		delete(rec.Subscribers, subscriber)
	}
}

// DropExpiredSubscriptions removes leases that were never renewed
// within timeoutSec, spec §8 property 8.
func (g *Graph) DropExpiredSubscriptions(now, timeoutSec float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var kept []*Subscription
	for _, s := range g.subs {
		if !s.AutoRenew && now-s.ExpiresAt > timeoutSec {
			continue
		}
		kept = append(kept, s)
	}
	g.subs = kept
}
