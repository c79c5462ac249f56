package graph

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/libmapper/libmapper-sub001/internal/herring/log"
	"github.com/libmapper/libmapper-sub001/link"
	"github.com/libmapper/libmapper-sub001/proptable"
)

func newTestGraph() *Graph {
	return New(10, log.NewWriterLogger("test", io.Discard), nil)
}

func TestGraph_AddOrUpdateDeviceFiresAddedThenModified(t *testing.T) {
	g := newTestGraph()
	var events []ChangeEvent
	g.OnChange(func(ev ChangeEvent) { events = append(events, ev) })

	g.AddOrUpdateDevice(1, "synth.1", "10.0.0.1", 9000, 9001, map[string]proptable.Value{
		"name": proptable.StringValue("synth.1"),
	})
	if len(events) != 1 || events[0].Kind != Added || events[0].Object != KindDevice {
		t.Fatalf("events after first AddOrUpdateDevice = %v, want one Added/KindDevice", events)
	}

	g.AddOrUpdateDevice(1, "synth.1", "10.0.0.1", 9000, 9001, map[string]proptable.Value{
		"name": proptable.StringValue("synth.1-renamed"),
	})
	if len(events) != 2 || events[1].Kind != Modified {
		t.Fatalf("events after property change = %v, want a second Modified event", events)
	}

	g.AddOrUpdateDevice(1, "synth.1", "10.0.0.1", 9000, 9001, map[string]proptable.Value{
		"name": proptable.StringValue("synth.1-renamed"),
	})
	if len(events) != 2 {
		t.Errorf("re-applying an unchanged property should not fire another event, got %d events", len(events))
	}
}

func TestGraph_DeviceByNameAndRemove(t *testing.T) {
	g := newTestGraph()
	g.AddOrUpdateDevice(1, "synth.1", "", 0, 0, nil)

	rec, ok := g.DeviceByName("synth.1")
	if !ok || rec.ID != 1 {
		t.Fatalf("DeviceByName(synth.1) = %v, %v", rec, ok)
	}

	var removed bool
	g.OnChange(func(ev ChangeEvent) {
		if ev.Kind == Removed && ev.Object == KindDevice {
			removed = true
		}
	})
	g.RemoveDevice(1)
	if !removed {
		t.Error("RemoveDevice should fire a Removed/KindDevice event")
	}
	if _, ok := g.DeviceByName("synth.1"); ok {
		t.Error("DeviceByName should not resolve a removed device")
	}
}

func TestGraph_DevicesWhereFiltersByProperty(t *testing.T) {
	g := newTestGraph()
	g.AddOrUpdateDevice(1, "a", "", 0, 0, map[string]proptable.Value{"lib_version": proptable.Int32Value(1)})
	g.AddOrUpdateDevice(2, "b", "", 0, 0, map[string]proptable.Value{"lib_version": proptable.Int32Value(2)})

	out := g.DevicesWhere("lib_version", proptable.GTE, proptable.Int32Value(2)).All()
	if len(out) != 1 || out[0].Name != "b" {
		t.Errorf("DevicesWhere(GTE 2) = %v, want only device b", out)
	}
}

func TestGraph_ExpireAndSweep(t *testing.T) {
	g := newTestGraph()
	g.AddOrUpdateDevice(1, "synth.1", "", 0, 0, nil)
	g.NoteSync(1, 100)

	g.Sweep(105) // within TimeoutSec=10 of last sync, should stay alive
	rec, _ := g.DeviceByID(1)
	if rec.Expired {
		t.Error("device synced 5s ago with a 10s timeout should not be expired yet")
	}

	g.Sweep(120) // 20s since last sync, past the timeout
	if !rec.Expired {
		t.Error("device should be marked Expired once it exceeds TimeoutSec without a sync")
	}

	g.NoteSync(1, 121)
	if rec.Expired {
		t.Error("NoteSync should clear the Expired flag")
	}
}

func TestGraph_SubscriptionRenewal(t *testing.T) {
	g := newTestGraph()
	sub := g.Subscribe("synth.1", 1, -1, 0)
	if !sub.AutoRenew {
		t.Fatal("lease=-1 should set AutoRenew")
	}

	due := g.DueForRenewal(3599)
	if len(due) != 1 {
		t.Fatalf("DueForRenewal near the bookkeeping horizon = %v, want 1", due)
	}

	var sent int
	err := g.RenewAll(context.Background(), 3599, func(ctx context.Context, s *Subscription) error {
		sent++
		return nil
	})
	if err != nil {
		t.Fatalf("RenewAll: %v", err)
	}
	if sent != 1 {
		t.Errorf("RenewAll sent %d renewals, want 1", sent)
	}
	if len(g.DueForRenewal(3599)) != 0 {
		t.Error("renewed subscription should no longer be due")
	}
}

func TestGraph_RenewAllPropagatesError(t *testing.T) {
	g := newTestGraph()
	g.Subscribe("synth.1", 1, -1, 0)

	wantErr := errors.New("send failed")
	err := g.RenewAll(context.Background(), 3599, func(ctx context.Context, s *Subscription) error {
		return wantErr
	})
	if err == nil {
		t.Fatal("RenewAll should propagate a renewal send failure")
	}
}

func TestGraph_DropExpiredSubscriptions(t *testing.T) {
	g := newTestGraph()
	g.Subscribe("synth.1", 1, 5, 0) // fixed 5s lease, not auto-renewing

	g.DropExpiredSubscriptions(3, 10)
	if len(g.subs) != 1 {
		t.Error("a lease well within its timeout window should survive DropExpiredSubscriptions")
	}

	g.DropExpiredSubscriptions(20, 10)
	if len(g.subs) != 0 {
		t.Error("a lease past lease+timeoutSec should be dropped")
	}
}

func TestGraph_RemoveLinkIfUnusedRespectsRefcount(t *testing.T) {
	g := newTestGraph()
	// Use a real link so Refcount() reflects actual retain/release state.
	l := link.New("synth.1", "filter.1", "", "")
	l.Retain()
	g.AddLink(1, l)

	g.RemoveLinkIfUnused(1)
	if _, ok := g.links[1]; !ok {
		t.Fatal("RemoveLinkIfUnused should not drop a link still retained by a map")
	}

	l.Release()
	g.RemoveLinkIfUnused(1)
	if _, ok := g.links[1]; ok {
		t.Error("RemoveLinkIfUnused should drop a link once its refcount reaches zero")
	}
}
