// Package network drives one device's side of the bus protocol: claim
// an ordinal-suffixed name, announce readiness, emit /sync heartbeats,
// and dispatch inbound envelopes into the graph, spec §4.9.
//
// network depends only on meshnet.Bus and the wire.Codec interface it
// wraps, not on relt directly, so protocol logic here is transport
// agnostic per SPEC_FULL.md §4.11.
package network

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/libmapper/libmapper-sub001/graph"
	"github.com/libmapper/libmapper-sub001/internal/herring/log"
	"github.com/libmapper/libmapper-sub001/internal/herring/metrics"
	"github.com/libmapper/libmapper-sub001/internal/meshnet"
	"github.com/libmapper/libmapper-sub001/wire"
)

const protocolVersion = 1

// Handler processes one address this package does not own itself
// (/map, /mapModify, /unmap, per-device signal traffic) — device wires
// its router in here so network stays agnostic of map/signal semantics.
type Handler func(env meshnet.Envelope)

// Network is the bus-facing half of a Device.
type Network struct {
	bus      *meshnet.Bus
	graph    *graph.Graph
	log      log.Logger
	metrics  *metrics.Set
	name     string
	ordinal  int
	randomID uint32

	handlers map[string]Handler

	ctx    context.Context
	cancel context.CancelFunc
}

// Start claims an ordinal-suffixed name on groupAddr and returns a ready
// Network, spec §4.9's startup sequence.
func Start(base, groupAddr string, g *graph.Graph, lg log.Logger, m *metrics.Set) (*Network, error) {
	bus, err := meshnet.Join(base, groupAddr, lg)
	if err != nil {
		return nil, err
	}

	randomID := rand.Uint32()
	name, ordinal, err := meshnet.ClaimOrdinal(bus, base, randomID)
	if err != nil {
		bus.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Network{
		bus: bus, graph: g, log: lg, metrics: m,
		name: name, ordinal: ordinal, randomID: randomID,
		handlers: make(map[string]Handler),
		ctx:      ctx, cancel: cancel,
	}
	go n.dispatchLoop()
	return n, nil
}

func (n *Network) Name() string { return n.name }
func (n *Network) Ordinal() int { return n.ordinal }

// On registers a Handler for a non-core address (/map, /mapModify,
// /unmap, a device's signal addresses); device's router wires these in.
func (n *Network) On(address string, h Handler) {
	n.handlers[address] = h
}

// Send broadcasts a single message on the shared group.
func (n *Network) Send(msg wire.Message) error { return n.bus.Broadcast(msg) }

// SendBundle broadcasts a Link's drained send_queue atomically, spec §4.7.
func (n *Network) SendBundle(bundle wire.Bundle) error { return n.bus.BroadcastBundle(bundle) }

// RunSync emits a /sync heartbeat every interval until ctx is done,
// spec §4.9: "Thereafter it periodically emits /sync heartbeats".
func (n *Network) RunSync(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if err := n.bus.Broadcast(wire.Message{
				Address: wire.AddrSync,
				Args:    []wire.Arg{wire.String(n.name), wire.Int32(protocolVersion)},
			}); err != nil {
				n.log.Warnf("network: sync broadcast: %v", err)
			}
		}
	}
}

// Sweep fans the graph's periodic expiry sweep out; kept as a thin
// wrapper so Device.Poll has a single call to make each tick.
func (n *Network) Sweep(now float64) { n.graph.Sweep(now) }

func (n *Network) dispatchLoop() {
	for {
		select {
		case <-n.ctx.Done():
			return
		case env, ok := <-n.bus.Receive():
			if !ok {
				return
			}
			n.dispatch(env)
		}
	}
}

func (n *Network) dispatch(env meshnet.Envelope) {
	switch env.Message.Address {
	case wire.AddrSync:
		n.handleSync(env.Message)
	case wire.AddrNameProbe, wire.AddrNameRegistered:
		// Already resolved during Start's ClaimOrdinal exchange; a late
		// arrival here is another device's announcement, not ours.
	default:
		if h, ok := n.handlers[env.Message.Address]; ok {
			h(env)
		}
	}
}

func (n *Network) handleSync(msg wire.Message) {
	if len(msg.Args) < 1 {
		return
	}
	deviceName := msg.Args[0].Str
	rec, ok := n.graph.DeviceByName(deviceName)
	if !ok {
		return
	}
	n.graph.NoteSync(rec.ID, nowSeconds())
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Close stops the dispatch loop and tears the bus down.
func (n *Network) Close() error {
	n.cancel()
	return n.bus.Close()
}

// ProbeLiveness fans a liveness check out to every device concurrently,
// spec §4.9's EXPIRED detection given a direct round-trip (used by
// tests and by Device.Poll's slow path when a /sync gap is suspicious
// rather than conclusive). Each probe is a /<target>/ping message
// carrying this device's name, broadcast on the shared group.
func (n *Network) ProbeLiveness(ctx context.Context, names []string) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		eg.Go(func() error {
			return n.bus.Broadcast(wire.Message{
				Address: wire.DeviceAddr(name, "ping"),
				Args:    []wire.Arg{wire.String(n.name)},
			})
		})
	}
	return eg.Wait()
}
