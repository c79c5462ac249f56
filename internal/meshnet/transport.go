// Package meshnet implements the multicast bus every device joins, spec
// §4.9: one relt group carrying /name/probe, /name/registered, and
// /sync traffic, plus a unicast path for direct signal/map data.
//
// Grounded on the teacher's core.ReliableTransport (pkg/mcast/core/
// transport.go): a relt.Relt wraps the group, a background poll
// goroutine drains relt's Consume() channel into a buffered producer
// channel, and Broadcast/Close mirror the teacher's shape almost
// directly. Unlike the teacher, this bus carries OSC-style wire.Message
// values (wire.Codec) instead of JSON-encoded protocol types, since
// spec §6 fixes the wire format independent of the transport.
package meshnet

import (
	"context"
	"fmt"
	"time"

	"github.com/jabolina/relt/pkg/relt"

	"github.com/libmapper/libmapper-sub001/internal/herring/log"
	"github.com/libmapper/libmapper-sub001/wire"
)

// Envelope is one received message tagged with where it came from.
type Envelope struct {
	Origin  string
	Message wire.Message
}

// Bus is the multicast transport one Device joins.
type Bus struct {
	log   log.Logger
	codec wire.Codec

	relt *relt.Relt

	producer chan Envelope
	ctx      context.Context
	cancel   context.CancelFunc
	name     string
}

// Join opens a relt group named by groupAddr and starts polling it,
// spec §4.9's "every device joins a well-known multicast group on
// startup". name identifies this device's own origin tag.
func Join(name, groupAddr string, lg log.Logger) (*Bus, error) {
	conf := relt.DefaultReltConfiguration()
	conf.Name = name
	conf.Exchange = relt.GroupAddress(groupAddr)
	r, err := relt.NewRelt(*conf)
	if err != nil {
		return nil, fmt.Errorf("meshnet: join %s: %w", groupAddr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		log: lg, codec: wire.DefaultCodec, relt: r,
		producer: make(chan Envelope, 256), ctx: ctx, cancel: cancel, name: name,
	}
	go b.poll()
	return b, nil
}

// Broadcast sends msg to every device on the group, spec §6's bus
// traffic (/name/probe, /name/registered, /sync).
func (b *Bus) Broadcast(msg wire.Message) error {
	data, err := b.codec.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("meshnet: encode %s: %w", msg.Address, err)
	}
	return b.relt.Broadcast(b.ctx, relt.Send{Data: data})
}

// BroadcastBundle sends an atomically-dispatched group of messages,
// spec §4.7's send_queue semantics carried over the bus.
func (b *Bus) BroadcastBundle(bundle wire.Bundle) error {
	data, err := b.codec.EncodeBundle(bundle)
	if err != nil {
		return fmt.Errorf("meshnet: encode bundle: %w", err)
	}
	return b.relt.Broadcast(b.ctx, relt.Send{Data: data})
}

// Receive returns the channel of inbound envelopes.
func (b *Bus) Receive() <-chan Envelope { return b.producer }

// Close tears the bus down.
func (b *Bus) Close() error {
	b.cancel()
	return b.relt.Close()
}

func (b *Bus) poll() {
	listener, err := b.relt.Consume()
	if err != nil {
		b.log.Errorf("meshnet: consume: %v", err)
		return
	}
	for {
		select {
		case <-b.ctx.Done():
			return
		case recv, ok := <-listener:
			if !ok {
				return
			}
			b.consume(recv.Origin, relt.Recv{Data: recv.Data, Error: recv.Error})
		}
	}
}

func (b *Bus) consume(origin string, recv relt.Recv) {
	if recv.Error != nil {
		b.log.Errorf("meshnet: recv from %s: %v", origin, recv.Error)
		return
	}
	if recv.Data == nil {
		return
	}

	msg, err := b.codec.DecodeMessage(recv.Data)
	if err != nil {
		// Not every payload is a lone message; a bundle's timetag does
		// not parse as a ','-prefixed typetag string, so bundles fail
		// DecodeMessage and are retried below.
		bundle, berr := b.codec.DecodeBundle(recv.Data)
		if berr != nil {
			b.log.Warnf("meshnet: undecodable payload from %s: %v", origin, err)
			return
		}
		for _, m := range bundle.Messages {
			b.deliver(origin, m)
		}
		return
	}
	b.deliver(origin, msg)
}

func (b *Bus) deliver(origin string, msg wire.Message) {
	timeout, cancel := context.WithTimeout(b.ctx, 250*time.Millisecond)
	defer cancel()
	select {
	case <-timeout.Done():
		b.log.Warnf("meshnet: dropped %s from %s, consumer too slow", msg.Address, origin)
	case b.producer <- Envelope{Origin: origin, Message: msg}:
	case <-b.ctx.Done():
	}
}
