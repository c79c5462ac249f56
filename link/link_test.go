package link

import (
	"testing"

	"github.com/libmapper/libmapper-sub001/wire"
)

func TestLink_RefcountGatesTeardown(t *testing.T) {
	l := New("synth.1", "filter.1", "239.192.23.1:7570", "10.0.0.1:9000")
	l.Retain()
	l.Retain()
	if l.Refcount() != 2 {
		t.Fatalf("Refcount() = %d, want 2", l.Refcount())
	}
	if l.Release() {
		t.Error("Release() should report false while a map still references the link")
	}
	if !l.Release() {
		t.Error("Release() should report true once the last map releases it")
	}
}

func TestLink_SendQueueDrainsAtomically(t *testing.T) {
	l := New("synth.1", "filter.1", "", "")
	l.StartQueue(wire.Immediate)
	l.Enqueue(wire.Message{Address: "/synth.1/freq", Args: []wire.Arg{wire.Float64(440)}})
	l.Enqueue(wire.Message{Address: "/synth.1/amp", Args: []wire.Arg{wire.Float64(0.5)}})

	if l.Queued() != 2 {
		t.Fatalf("Queued() = %d, want 2", l.Queued())
	}

	bundle := l.SendQueue(wire.NewTimetag(100, 0))
	if len(bundle.Messages) != 2 {
		t.Fatalf("SendQueue drained %d messages, want 2", len(bundle.Messages))
	}
	if l.Queued() != 0 {
		t.Errorf("Queued() after SendQueue = %d, want 0", l.Queued())
	}
	if bundle.Time.Seconds() != 100 {
		t.Errorf("bundle time = %v, want seconds=100", bundle.Time)
	}
}
