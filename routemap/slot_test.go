package routemap

import "testing"

func TestApplyBoundary_Clamp(t *testing.T) {
	out, suppressed := ApplyBoundary([]float64{-5, 150}, []float64{0}, []float64{100}, BoundClamp)
	if suppressed {
		t.Fatal("clamp should never suppress")
	}
	if out[0] != 0 || out[1] != 100 {
		t.Errorf("ApplyBoundary(clamp) = %v, want [0 100]", out)
	}
}

func TestApplyBoundary_Mute(t *testing.T) {
	_, suppressed := ApplyBoundary([]float64{150}, []float64{0}, []float64{100}, BoundMute)
	if !suppressed {
		t.Error("mute should suppress when a value is out of range")
	}
	out, suppressed := ApplyBoundary([]float64{50}, []float64{0}, []float64{100}, BoundMute)
	if suppressed {
		t.Error("mute should not suppress an in-range value")
	}
	if out[0] != 50 {
		t.Errorf("ApplyBoundary(mute, in-range) = %v, want [50]", out)
	}
}

func TestApplyBoundary_Wrap(t *testing.T) {
	out, _ := ApplyBoundary([]float64{110}, []float64{0}, []float64{100}, BoundWrap)
	if out[0] != 10 {
		t.Errorf("ApplyBoundary(wrap, 110 over [0,100]) = %v, want [10]", out)
	}
}

func TestApplyBoundary_Fold(t *testing.T) {
	out, _ := ApplyBoundary([]float64{110}, []float64{0}, []float64{100}, BoundFold)
	if out[0] != 90 {
		t.Errorf("ApplyBoundary(fold, 110 over [0,100]) = %v, want [90] (bounces back)", out)
	}
}

func TestSorted_OrdersByDeviceSlashSignal(t *testing.T) {
	slots := []*Slot{
		{Device: "zeta", SignalName: "a"},
		{Device: "alpha", SignalName: "b"},
		{Device: "alpha", SignalName: "a"},
	}
	sorted := Sorted(slots)
	want := []string{"alpha/a", "alpha/b", "zeta/a"}
	for i, s := range sorted {
		got := s.Device + "/" + s.SignalName
		if got != want[i] {
			t.Errorf("Sorted()[%d] = %s, want %s", i, got, want[i])
		}
	}
}
