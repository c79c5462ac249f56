// Package device ties every other package together into the top-level
// object a process constructs: one Device per local endpoint, owning
// its graph, its signals, its maps, and the network connection those
// maps are routed over, spec §4.10.
//
// Grounded on the teacher's Unity (pkg/mcast/protocol.go): the
// poweroff/contextHolder guarded-single-poll-loop idiom is carried
// across almost verbatim, generalized from "process GM-Cast RPCs" to
// "route signal updates through active maps and drive periodic
// network bookkeeping".
package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libmapper/libmapper-sub001/config"
	"github.com/libmapper/libmapper-sub001/expr"
	"github.com/libmapper/libmapper-sub001/graph"
	"github.com/libmapper/libmapper-sub001/instance/idmap"
	"github.com/libmapper/libmapper-sub001/internal/herring/log"
	"github.com/libmapper/libmapper-sub001/internal/herring/metrics"
	"github.com/libmapper/libmapper-sub001/internal/meshnet"
	"github.com/libmapper/libmapper-sub001/link"
	"github.com/libmapper/libmapper-sub001/network"
	"github.com/libmapper/libmapper-sub001/proptable"
	"github.com/libmapper/libmapper-sub001/routemap"
	"github.com/libmapper/libmapper-sub001/signal"
	"github.com/libmapper/libmapper-sub001/signal/buffer"
	"github.com/libmapper/libmapper-sub001/wire"
)

// poweroff holds the state for a guarded, idempotent shutdown, carried
// directly from the teacher's Unity.off.
type poweroff struct {
	mu       sync.Mutex
	shutdown bool
	ch       chan struct{}
}

func newPoweroff() poweroff { return poweroff{ch: make(chan struct{})} }

func (p *poweroff) trigger() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return false
	}
	p.shutdown = true
	close(p.ch)
	return true
}

// contextHolder tracks whether the poll loop has already been started,
// carried directly from the teacher's Unity.context.
type contextHolder struct {
	mu      sync.Mutex
	started bool
}

func (c *contextHolder) start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return false
	}
	c.started = true
	return true
}

// Device is one local endpoint on the bus: a named collection of
// signals, the maps routing between them (locally or across the
// network), and the graph replicating what this device has learned
// about its peers.
type Device struct {
	mu sync.Mutex

	cfg   *config.Config
	Graph *graph.Graph
	net   *network.Network
	ids   *idmap.Table

	signals      map[string]*signal.Signal
	maps         map[uint64]*routemap.Map
	mapsBySource map[string][]uint64 // "device/signal" path -> map ids reading it as a source
	links        map[string]*link.Link
	nextMapID    uint64

	log     log.Logger
	metrics *metrics.Set

	off     poweroff
	context contextHolder
	done    chan struct{}
}

// New starts the network connection (claiming an ordinal name) and
// returns a Device ready to have signals and maps added to it.
func New(cfg *config.Config, lg log.Logger) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := metrics.NewSet(nil, cfg.Name)
	g := graph.New(cfg.TimeoutSec, lg, m)

	net, err := network.Start(cfg.Name, cfg.AdminGroup, g, lg, m)
	if err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}

	d := &Device{
		cfg: cfg, Graph: g, net: net, ids: idmap.NewTable(),
		signals:      make(map[string]*signal.Signal),
		maps:         make(map[uint64]*routemap.Map),
		mapsBySource: make(map[string][]uint64),
		links:        make(map[string]*link.Link),
		log:          lg, metrics: m,
		off:  newPoweroff(),
		done: make(chan struct{}),
	}

	g.AddOrUpdateDevice(hashName(net.Name()), net.Name(), "", 0, cfg.DataPort, nil)

	net.On(wire.AddrMap, d.handleMapMsg)
	net.On(wire.AddrMapModify, d.handleMapModify)
	net.On(wire.AddrUnmap, d.handleUnmap)
	net.On(wire.DeviceAddr(net.Name(), "subscribe"), d.handleSubscribeMsg)
	net.On(wire.DeviceAddr(net.Name(), "unsubscribe"), d.handleUnsubscribeMsg)

	return d, nil
}

func hashName(name string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(name); i++ {
		h ^= uint64(name[i])
		h *= 1099511628211
	}
	return h
}

// Name is this device's registered, ordinal-suffixed name.
func (d *Device) Name() string { return d.net.Name() }

// AddSignal declares a new signal on this device and wires its update
// callback into the router, spec §4.5/§4.10. It also registers the
// per-signal update/release addresses of spec §6, so a remote map that
// computes this signal's value (because the map's dest is this signal
// but lives, by convention, on the map's source device) can push the
// finished value or a release directly rather than re-evaluating.
func (d *Device) AddSignal(name string, dir signal.Direction, elem buffer.ElementType, vecLen, numInstances, maxHistory int) *signal.Signal {
	d.mu.Lock()
	defer d.mu.Unlock()

	if numInstances <= 0 {
		numInstances = d.cfg.DefaultNumInstances
	}
	if maxHistory <= 0 {
		maxHistory = d.cfg.DefaultMaxHistory
	}
	id := hashName(d.Name() + "/" + name)
	sig := signal.New(name, d.Name(), hashName(d.Name()), id, dir, elem, vecLen, numInstances, maxHistory, d.ids, d.log, d.metrics)
	sig.SetCallbacks(d.onSignalUpdate, nil)
	d.signals[name] = sig

	d.net.On(wire.SignalAddr(d.Name(), name), d.handleSignalUpdate(sig))
	d.net.On(wire.SignalReleaseAddr(d.Name(), name), d.handleSignalRelease(sig))

	d.Graph.AddOrUpdateSignal(id, d.Name(), name, nil)
	return sig
}

// AddMap registers sources/dest into a compiled, activated Map,
// indexes it for the router, and broadcasts a /map control message so
// any peer that owns an endpoint slot can resolve and track it too,
// spec §2's "Control flow (map creation)". Slots whose Device equals
// this Device's name are resolved against locally-known signals;
// others are left remote (Local == nil) until the owning peer's own
// handling of this same broadcast resolves them.
func (d *Device) AddMap(mode routemap.Mode, sources []*routemap.Slot, dest *routemap.Slot, expression string) (*routemap.Map, error) {
	sorted := routemap.Sorted(sources)

	d.mu.Lock()
	d.nextMapID++
	id := d.nextMapID
	d.mu.Unlock()

	m, err := d.registerMap(id, mode, sorted, dest, expression)
	if err != nil {
		return nil, err
	}
	if err := d.net.Send(buildMapMessage(id, mode, sorted, dest, expression)); err != nil {
		d.log.Warnf("device: broadcasting /map for map %d: %v", id, err)
	}
	return m, nil
}

// registerMap resolves local slots, compiles, activates, and indexes a
// map whose id has already been agreed on — either picked locally by
// AddMap, or named by an incoming /map message some other device sent.
func (d *Device) registerMap(id uint64, mode routemap.Mode, sorted []*routemap.Slot, dest *routemap.Slot, expression string) (*routemap.Map, error) {
	d.mu.Lock()
	for _, s := range sorted {
		if s.Device == d.Name() {
			if sig, ok := d.signals[s.SignalName]; ok {
				s.Local = sig
			}
		}
	}
	if dest.Device == d.Name() {
		if sig, ok := d.signals[dest.SignalName]; ok {
			dest.Local = sig
		}
	}

	var remoteLink *link.Link
	if dest.Device != d.Name() {
		l, ok := d.links[dest.Device]
		if !ok {
			l = link.New(d.Name(), dest.Device, "", "")
			l.StartQueue(wire.NewTimetag(uint32(nowSeconds()), 0))
			d.links[dest.Device] = l
		}
		l.Retain()
		remoteLink = l
	}
	d.mu.Unlock()

	releaseLink := func() {
		if remoteLink == nil {
			return
		}
		if remoteLink.Release() {
			d.mu.Lock()
			delete(d.links, dest.Device)
			d.mu.Unlock()
		}
	}

	m, err := routemap.New(id, sorted, dest)
	if err != nil {
		releaseLink()
		return nil, err
	}
	m.Mode = mode
	m.Expression = expression
	if err := m.Compile(); err != nil {
		releaseLink()
		return nil, err
	}
	if err := m.Activate(); err != nil {
		releaseLink()
		return nil, err
	}

	d.mu.Lock()
	d.maps[id] = m
	for _, s := range sorted {
		path := s.Device + "/" + s.SignalName
		d.mapsBySource[path] = append(d.mapsBySource[path], id)
	}
	if id > d.nextMapID {
		d.nextMapID = id
	}
	d.mu.Unlock()

	d.Graph.AddMap(id, m)
	return m, nil
}

// RemoveMap tears a map down locally and broadcasts /unmap, spec §2.
func (d *Device) RemoveMap(id uint64) {
	d.removeMap(id)
	props := proptable.NewTable()
	props.Define(wire.PropID, proptable.Int64Value(int64(id)), proptable.ModifiableByLocal)
	if err := d.net.Send(wire.Message{Address: wire.AddrUnmap, Args: props.Args()}); err != nil {
		d.log.Warnf("device: broadcasting /unmap for map %d: %v", id, err)
	}
}

func (d *Device) removeMap(id uint64) {
	d.mu.Lock()
	m, ok := d.maps[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.maps, id)
	for path, ids := range d.mapsBySource {
		kept := ids[:0]
		for _, existing := range ids {
			if existing != id {
				kept = append(kept, existing)
			}
		}
		d.mapsBySource[path] = kept
	}
	destDevice := m.Dest.Device
	l, hasLink := d.links[destDevice]
	d.mu.Unlock()

	if hasLink && destDevice != d.Name() && l.Release() {
		d.mu.Lock()
		delete(d.links, destDevice)
		d.mu.Unlock()
	}
	d.Graph.RemoveMap(id)
}

// ModifyMap recompiles map id's expression and broadcasts /mapModify so
// every peer tracking it recompiles the same way, spec §2/§6.
func (d *Device) ModifyMap(id uint64, expression string) error {
	d.mu.Lock()
	m, ok := d.maps[id]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("device: no such map %d", id)
	}
	m.Expression = expression
	if err := m.Compile(); err != nil {
		return err
	}
	props := proptable.NewTable()
	props.Define(wire.PropID, proptable.Int64Value(int64(id)), proptable.ModifiableByLocal)
	props.Define(wire.PropExpr, proptable.StringValue(expression), proptable.ModifiableByLocal)
	if err := d.net.Send(wire.Message{Address: wire.AddrMapModify, Args: props.Args()}); err != nil {
		d.log.Warnf("device: broadcasting /mapModify for map %d: %v", id, err)
	}
	return nil
}

func (d *Device) handleMapMsg(env meshnet.Envelope) {
	id, mode, sources, dest, expression, ok := parseMapMessage(env.Message)
	if !ok {
		d.log.Warnf("device: malformed /map message from %s", env.Origin)
		return
	}
	d.mu.Lock()
	_, exists := d.maps[id]
	d.mu.Unlock()
	if exists {
		return // already registered — most likely this device's own broadcast
	}
	if _, err := d.registerMap(id, mode, routemap.Sorted(sources), dest, expression); err != nil {
		d.log.Errorf("device: registering map %d from %s: %v", id, env.Origin, err)
	}
}

func (d *Device) handleMapModify(env meshnet.Envelope) {
	props := proptable.ParseArgs(env.Message.Args)
	idVal, ok := props.Get(wire.PropID)
	if !ok || len(idVal.Int64s) == 0 {
		return
	}
	id := uint64(idVal.Int64s[0])

	d.mu.Lock()
	m, ok := d.maps[id]
	d.mu.Unlock()
	if !ok {
		return
	}
	exprVal, ok := props.Get(wire.PropExpr)
	if !ok {
		return
	}
	m.Expression = exprVal.Str
	if err := m.Compile(); err != nil {
		d.log.Errorf("device: recompiling map %d after /mapModify from %s: %v", id, env.Origin, err)
	}
}

func (d *Device) handleUnmap(env meshnet.Envelope) {
	props := proptable.ParseArgs(env.Message.Args)
	idVal, ok := props.Get(wire.PropID)
	if !ok || len(idVal.Int64s) == 0 {
		return
	}
	d.removeMap(uint64(idVal.Int64s[0]))
}

// Subscribe requests graph deltas for device from this device, spec
// §4.8. leaseSeconds < 0 requests an auto-renewing lease.
func (d *Device) Subscribe(device string, flags int, leaseSeconds float64) error {
	sub := d.Graph.Subscribe(device, flags, leaseSeconds, nowSeconds())
	return d.sendSubscribe(sub)
}

func (d *Device) sendSubscribe(sub *graph.Subscription) error {
	props := proptable.NewTable()
	props.Define(wire.PropScope, proptable.Int32Value(int32(sub.Flags)), proptable.ModifiableByLocal)
	props.Define(wire.PropLease, proptable.Float64Value(sub.LeaseSeconds), proptable.ModifiableByLocal)
	args := append([]wire.Arg{wire.String(d.Name())}, props.Args()...)
	return d.net.Send(wire.Message{Address: wire.DeviceAddr(sub.Device, "subscribe"), Args: args})
}

// renewSubscription is RenewAll's send callback: re-emit the original
// /subscribe message, spec §8 property 8 ("re-emits a /subscribe").
func (d *Device) renewSubscription(ctx context.Context, sub *graph.Subscription) error {
	return d.sendSubscribe(sub)
}

func (d *Device) handleSubscribeMsg(env meshnet.Envelope) {
	if len(env.Message.Args) < 1 || env.Message.Args[0].Tag != wire.TagString {
		return
	}
	d.Graph.AddSubscriber(hashName(d.Name()), env.Message.Args[0].Str)
}

func (d *Device) handleUnsubscribeMsg(env meshnet.Envelope) {
	if len(env.Message.Args) < 1 || env.Message.Args[0].Tag != wire.TagString {
		return
	}
	d.Graph.RemoveSubscriber(hashName(d.Name()), env.Message.Args[0].Str)
}

// handleSignalUpdate receives a value a remote map-processing device
// already computed for sig (this device's own signal), bypassing local
// evaluation entirely, spec §2's "remote device updates its buffer".
func (d *Device) handleSignalUpdate(sig *signal.Signal) network.Handler {
	return func(env meshnet.Envelope) {
		msg := env.Message
		if len(msg.Args) < 1 || msg.Args[0].Tag != wire.TagInt32 {
			return
		}
		local := uint32(msg.Args[0].I32)
		vec := make([]float64, 0, len(msg.Args)-1)
		for _, a := range msg.Args[1:] {
			if a.Tag == wire.TagFloat64 {
				vec = append(vec, a.F64)
			}
		}
		if _, err := sig.SetValue(local, vec, nowSeconds()); err != nil {
			d.log.Warnf("device: applying remote update to %s/%s: %v", sig.DeviceName, sig.Name, err)
		}
	}
}

func (d *Device) handleSignalRelease(sig *signal.Signal) network.Handler {
	return func(env meshnet.Envelope) {
		msg := env.Message
		if len(msg.Args) < 1 || msg.Args[0].Tag != wire.TagInt32 {
			return
		}
		if err := sig.ReleaseInstance(uint32(msg.Args[0].I32)); err != nil {
			d.log.Warnf("device: applying remote release to %s/%s: %v", sig.DeviceName, sig.Name, err)
		}
	}
}

// onSignalUpdate is the router: spec §4.10's "maps a signal update to
// its outgoing maps and evaluates each". It runs on whatever goroutine
// called signal.Signal.SetValue — normally Device.Poll's loop, but a
// caller may also drive a signal directly between Poll iterations.
func (d *Device) onSignalUpdate(sig *signal.Signal, inst *signal.Instance, vec []float64, t float64) {
	path := sig.DeviceName + "/" + sig.Name
	d.mu.Lock()
	ids := append([]uint64(nil), d.mapsBySource[path]...)
	d.mu.Unlock()

	var local uint32
	if inst != nil {
		local = inst.Local
	}
	for _, id := range ids {
		d.mu.Lock()
		m := d.maps[id]
		d.mu.Unlock()
		if m == nil {
			continue
		}
		d.evaluateMap(m, path, local, t)
	}
}

// evaluateMap runs m's compiled program for the source update arriving
// on updatedPath. Per spec §4.4, "if no dimension of the expression
// depends on the live instance", the whole map is instance-reducing and
// evaluates once; otherwise the caller loops over every active instance
// of the triggering source, pairing the same Local id across every
// source slot and the destination (the "instance id agreement"
// property, spec §8 property 2).
func (d *Device) evaluateMap(m *routemap.Map, updatedPath string, triggerLocal uint32, t float64) {
	idx := -1
	for i, s := range m.Sources {
		if s.Device+"/"+s.SignalName == updatedPath {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	m.NoteSourceUpdate(idx, t)
	if !m.ShouldEvaluate(idx) {
		return
	}

	sourceSignals := make([]*signal.Signal, len(m.Sources))
	for i, s := range m.Sources {
		if s.Local == nil {
			return // a remote source hasn't been mirrored locally yet
		}
		sourceSignals[i] = s.Local
	}

	if m.InstanceReducing() {
		sources := make([]*signal.Instance, len(m.Sources))
		for i, sig := range sourceSignals {
			inst, ok := sig.Find(triggerLocal)
			if !ok || i != idx {
				active := sig.ActiveInstances()
				if len(active) == 0 {
					return
				}
				inst = active[0]
			}
			sources[i] = inst
		}
		d.evaluateInstance(m, sourceSignals, sources, triggerLocal, idx, t)
		return
	}

	triggering := sourceSignals[idx]
	for _, leadInst := range triggering.ActiveInstances() {
		local := leadInst.Local
		sources := make([]*signal.Instance, len(m.Sources))
		matched := true
		for i, sig := range sourceSignals {
			if i == idx {
				sources[i] = leadInst
				continue
			}
			inst, ok := sig.Find(local)
			if !ok {
				matched = false
				break
			}
			sources[i] = inst
		}
		if !matched {
			continue
		}
		d.evaluateInstance(m, sourceSignals, sources, local, idx, t)
	}
}

// evaluateInstance runs one evaluation of m for a single resolved
// instance identity, and acts on every bit of the result mask: a
// release-before/after bit releases the destination instance (spec
// §4.4's `alive` variable, §8 properties 6/7) independent of whether an
// update was also produced, and an update bit writes the destination
// locally or forwards it to the remote device that owns it.
func (d *Device) evaluateInstance(m *routemap.Map, sourceSignals []*signal.Signal, sources []*signal.Instance, local uint32, latest int, t float64) {
	var dest *signal.Instance
	if m.Dest.Local != nil {
		if inst, ok := m.Dest.Local.Find(local); ok {
			dest = inst
		} else {
			dest = &signal.Instance{Local: local, Buffer: buffer.New(buffer.Float64, m.Dest.Local.VectorLength, m.Dest.Local.MaxHistory)}
		}
	}

	ctx := routemap.NewInstanceContext(sources, sourceSignals, dest, t, latest)
	result, out, err := m.Evaluate(ctx)
	if err != nil {
		d.log.Errorf("device: map %d evaluation: %v", m.ID, err)
		return
	}
	ctx.Persist()
	m.MarkEvaluated(t)

	if result.Has(expr.ResultReleaseBeforeUpdate) {
		d.releaseDest(m, local)
	}
	if result.Has(expr.ResultUpdate) {
		if m.Dest.Local != nil {
			if _, err := m.Dest.Local.SetValue(local, out, t); err != nil {
				d.log.Warnf("device: map %d writing instance %d: %v", m.ID, local, err)
			}
		} else {
			d.forwardRemote(m, local, out, t)
		}
	}
	if result.Has(expr.ResultReleaseAfterUpdate) {
		d.releaseDest(m, local)
	}
}

func (d *Device) releaseDest(m *routemap.Map, local uint32) {
	if m.Dest.Local != nil {
		if err := m.Dest.Local.ReleaseInstance(local); err != nil {
			d.log.Warnf("device: releasing map %d instance %d: %v", m.ID, local, err)
		}
		return
	}
	d.forwardRelease(m, local)
}

// forwardRemote enqueues a computed destination value on the link to
// the device that owns m.Dest, to be flushed by Poll's next tick, spec
// §4.7/§2. The instance's Local id travels as the first argument so the
// receiving handleSignalUpdate applies it to the matching instance.
func (d *Device) forwardRemote(m *routemap.Map, local uint32, vec []float64, t float64) {
	d.mu.Lock()
	l, ok := d.links[m.Dest.Device]
	d.mu.Unlock()
	if !ok {
		d.log.Warnf("device: map %d has no link to %s, dropping update", m.ID, m.Dest.Device)
		return
	}
	args := make([]wire.Arg, 0, len(vec)+1)
	args = append(args, wire.Int32(int32(local)))
	for _, v := range vec {
		args = append(args, wire.Float64(v))
	}
	l.Enqueue(wire.Message{Address: wire.SignalAddr(m.Dest.Device, m.Dest.SignalName), Args: args})
}

func (d *Device) forwardRelease(m *routemap.Map, local uint32) {
	d.mu.Lock()
	l, ok := d.links[m.Dest.Device]
	d.mu.Unlock()
	if !ok {
		return
	}
	l.Enqueue(wire.Message{
		Address: wire.SignalReleaseAddr(m.Dest.Device, m.Dest.SignalName),
		Args:    []wire.Arg{wire.Int32(int32(local))},
	})
}

// flushLinks drains every link's queued bundle and puts it on the bus,
// spec §4.7: "send_queue(time) transmits them atomically", then opens
// the next accumulation window.
func (d *Device) flushLinks(now float64) {
	d.mu.Lock()
	links := make([]*link.Link, 0, len(d.links))
	for _, l := range d.links {
		links = append(links, l)
	}
	d.mu.Unlock()

	tt := wire.NewTimetag(uint32(now), 0)
	for _, l := range links {
		if l.Queued() == 0 {
			continue
		}
		bundle := l.SendQueue(tt)
		if err := d.net.SendBundle(bundle); err != nil {
			d.log.Warnf("device: sending link bundle to %s: %v", l.RemoteDevice, err)
		}
		l.StartQueue(tt)
	}
}

// Poll runs the single select loop that drives periodic network
// bookkeeping (the /sync heartbeat, the expiry sweep, link flushing,
// subscription renewal, link liveness probing) until Shutdown is
// called, mirroring the teacher's Unity.run/poll guarded single-loop
// idiom almost exactly. Spec §4.10: "re-subscription, link pings, map
// staged->active transitions, expired-device sweep" — map activation
// itself is synchronous (Map.Activate is called directly once both
// Compile and the local endpoint resolution succeed; see DESIGN.md for
// why the full handshake is not staged across polls here).
func (d *Device) Poll(ctx context.Context) {
	if !d.context.start() {
		return
	}
	defer close(d.done)

	syncCtx, cancelSync := context.WithCancel(ctx)
	defer cancelSync()
	go d.net.RunSync(syncCtx, time.Duration(d.cfg.SyncIntervalSec*float64(time.Second)))

	sweep := time.NewTicker(time.Duration(d.cfg.SyncIntervalSec * float64(time.Second)))
	defer sweep.Stop()

	for {
		select {
		case <-d.off.ch:
			return
		case <-ctx.Done():
			return
		case <-sweep.C:
			now := nowSeconds()
			d.Graph.Sweep(now)
			d.Graph.DropExpiredSubscriptions(now, d.cfg.TimeoutSec)
			if err := d.Graph.RenewAll(ctx, now, d.renewSubscription); err != nil {
				d.log.Warnf("device: subscription renewal: %v", err)
			}
			d.flushLinks(now)
			d.probeLinkLiveness(ctx)
		}
	}
}

func (d *Device) probeLinkLiveness(ctx context.Context) {
	d.mu.Lock()
	names := make([]string, 0, len(d.links))
	for _, l := range d.links {
		names = append(names, l.RemoteDevice)
	}
	d.mu.Unlock()
	if len(names) == 0 {
		return
	}
	if err := d.net.ProbeLiveness(ctx, names); err != nil {
		d.log.Warnf("device: link liveness probe: %v", err)
	}
}

func nowSeconds() float64 { return float64(time.Now().UnixNano()) / 1e9 }

// Shutdown stops Poll and tears the network connection down,
// idempotent per the teacher's Unity.Shutdown.
func (d *Device) Shutdown() {
	if d.off.trigger() {
		<-d.done
	}
	d.net.Close()
}
