// Package link implements the per-peer outgoing bundle queue of spec
// §4.7: updates accumulate after start_queue(time) and are flushed
// atomically by send_queue(time); links are reference-counted by the
// maps that traverse them.
//
// Grounded on the teacher's core.transport.go ReliableTransport.producer
// buffered-channel-as-outgoing-queue pattern, adapted from "channel fed
// by the network poller" to "slice drained under a mutex by Device.Poll".
package link

import (
	"sync"

	"github.com/libmapper/libmapper-sub001/wire"
)

// Link is the ordered pair (local_device, remote_device) plus its
// outgoing queue, spec §3.
type Link struct {
	mu sync.Mutex

	LocalDevice  string
	RemoteDevice string
	AdminAddr    string
	DataAddr     string

	refcount int

	queueing  bool
	queueTime wire.Timetag
	messages  []wire.Message
}

// New creates a link with zero maps attached; the caller must Retain
// it once per map that starts using it.
func New(localDevice, remoteDevice, adminAddr, dataAddr string) *Link {
	return &Link{LocalDevice: localDevice, RemoteDevice: remoteDevice, AdminAddr: adminAddr, DataAddr: dataAddr}
}

// Retain records that one more map now traverses this link.
func (l *Link) Retain() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refcount++
}

// Release records that a map stopped traversing this link. It returns
// true when the refcount has reached zero, at which point the caller
// (graph) must tear the link down and discard any queued bundle.
func (l *Link) Release() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refcount--
	return l.refcount <= 0
}

func (l *Link) Refcount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refcount
}

// StartQueue begins accumulating outgoing messages under time t instead
// of sending them immediately, spec §4.7.
func (l *Link) StartQueue(t wire.Timetag) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queueing = true
	l.queueTime = t
}

// Enqueue appends msg to the pending messages whether or not StartQueue
// has been called; nothing is sent from here, the messages leave only
// through SendQueue.
func (l *Link) Enqueue(msg wire.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// Queued is the number of messages waiting to be flushed.
func (l *Link) Queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// SendQueue atomically drains the pending bundle, returning it wrapped
// with timetag t (spec §4.7: "send_queue(time) transmits them
// atomically"). The caller is responsible for actually writing the
// bundle to the transport; this only does the bookkeeping.
func (l *Link) SendQueue(t wire.Timetag) wire.Bundle {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := wire.Bundle{Time: t, Messages: l.messages}
	l.messages = nil
	l.queueing = false
	return b
}
