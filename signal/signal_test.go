package signal

import (
	"io"
	"testing"

	"github.com/libmapper/libmapper-sub001/instance/idmap"
	"github.com/libmapper/libmapper-sub001/internal/herring/log"
	"github.com/libmapper/libmapper-sub001/signal/buffer"
)

func testSignal(t *testing.T, numInstances int, steal StealPolicy) *Signal {
	t.Helper()
	lg := log.NewWriterLogger("test", io.Discard)
	s := New("freq", "synth.1", 1, 1, DirIn, buffer.Float64, 1, numInstances, 4, idmap.NewTable(), lg, nil)
	s.Steal = steal
	return s
}

func TestSignal_SetValueReusesReservedSlot(t *testing.T) {
	s := testSignal(t, 2, StealNone)
	var updates int
	s.SetCallbacks(func(sig *Signal, inst *Instance, vec []float64, time float64) {
		updates++
	}, nil)

	inst, err := s.SetValue(1, []float64{440}, 0)
	if err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if !inst.Status.Has(StatusActive) {
		t.Error("instance should be active after SetValue")
	}
	if updates != 1 {
		t.Errorf("updates = %d, want 1", updates)
	}

	if _, err := s.SetValue(1, []float64{441}, 1); err != nil {
		t.Fatalf("second SetValue on same local id: %v", err)
	}
	if updates != 2 {
		t.Errorf("updates after second write = %d, want 2", updates)
	}
	if len(s.ActiveInstances()) != 1 {
		t.Errorf("ActiveInstances() = %d, want 1 (same instance reused)", len(s.ActiveInstances()))
	}
}

func TestSignal_OverflowWithoutStealing(t *testing.T) {
	s := testSignal(t, 1, StealNone)
	if _, err := s.SetValue(1, []float64{1}, 0); err != nil {
		t.Fatalf("SetValue(1): %v", err)
	}
	if _, err := s.SetValue(2, []float64{2}, 0); err != ErrInstanceOverflow {
		t.Fatalf("SetValue(2) with pool exhausted and stealing disabled: got %v, want ErrInstanceOverflow", err)
	}
}

func TestSignal_StealOldestEvictsFirstActivated(t *testing.T) {
	s := testSignal(t, 2, StealOldest)
	if _, err := s.SetValue(1, []float64{1}, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetValue(2, []float64{2}, 0); err != nil {
		t.Fatal(err)
	}
	inst, err := s.SetValue(3, []float64{3}, 0)
	if err != nil {
		t.Fatalf("SetValue(3) should steal instance 1, got error: %v", err)
	}
	if !inst.Status.Has(StatusOverflow) {
		t.Error("stolen instance should carry StatusOverflow")
	}
	if _, ok := s.Find(1); ok {
		t.Error("instance 1 should have been evicted by StealOldest")
	}
}

func TestSignal_ReleaseInstanceFiresCallback(t *testing.T) {
	s := testSignal(t, 1, StealNone)
	if _, err := s.SetValue(1, []float64{1}, 0); err != nil {
		t.Fatal(err)
	}
	var gotEvent EventMask
	s.SetCallbacks(nil, func(sig *Signal, inst *Instance, event EventMask) {
		gotEvent = event
	})

	if err := s.ReleaseInstance(1); err != nil {
		t.Fatalf("ReleaseInstance: %v", err)
	}
	if gotEvent != EventRelUpstream {
		t.Errorf("event = %v, want EventRelUpstream", gotEvent)
	}
	inst, _ := s.Find(1)
	if inst.Status.Has(StatusActive) {
		t.Error("released instance should no longer be Active")
	}
	if len(s.ActiveInstances()) != 0 {
		t.Error("ActiveInstances() should be empty after release")
	}

	if err := s.ReleaseInstance(99); err != ErrUnknownInstance {
		t.Errorf("releasing an unknown instance: got %v, want ErrUnknownInstance", err)
	}
}
