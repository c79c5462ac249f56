package buffer

import "testing"

func TestBuffer_WriteAndRead(t *testing.T) {
	b := New(Float64, 2, 4)
	if _, _, err := b.Read(0); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty on an unwritten buffer, got %v", err)
	}

	b.Write([]float64{1, 2}, 10)
	b.Write([]float64{3, 4}, 11)

	v, ts, err := b.Read(0)
	if err != nil {
		t.Fatalf("Read(0): %v", err)
	}
	if v[0] != 3 || v[1] != 4 || ts != 11 {
		t.Errorf("Read(0) = %v@%v, want [3 4]@11", v, ts)
	}

	v, ts, err = b.Read(-1)
	if err != nil {
		t.Fatalf("Read(-1): %v", err)
	}
	if v[0] != 1 || v[1] != 2 || ts != 10 {
		t.Errorf("Read(-1) = %v@%v, want [1 2]@10", v, ts)
	}
}

func TestBuffer_RingWraps(t *testing.T) {
	b := New(Float64, 1, 3)
	for i := 0; i < 10; i++ {
		b.Write([]float64{float64(i)}, float64(i))
	}
	if b.NumSamples() != 3 {
		t.Fatalf("NumSamples() = %d, want 3 (saturated)", b.NumSamples())
	}
	v, _, err := b.Read(-2)
	if err != nil {
		t.Fatalf("Read(-2): %v", err)
	}
	if v[0] != 7 {
		t.Errorf("Read(-2) = %v, want [7]", v)
	}
	if _, _, err := b.Read(-3); err != ErrEmpty {
		t.Errorf("Read(-3) should be ErrEmpty once only 3 samples are retained, got %v", err)
	}
}

func TestBuffer_WriteAtSeedsHistoryWithoutAdvancingHead(t *testing.T) {
	b := New(Float64, 1, 4)
	b.Write([]float64{1}, 0)
	b.Write([]float64{2}, 1)

	if err := b.WriteAt(-1, []float64{99}, 0.5); err != nil {
		t.Fatalf("WriteAt(-1): %v", err)
	}
	v, _, _ := b.Read(-1)
	if v[0] != 99 {
		t.Errorf("Read(-1) after WriteAt(-1) = %v, want [99]", v)
	}
	v, _, _ = b.Read(0)
	if v[0] != 2 {
		t.Errorf("Read(0) after WriteAt(-1) = %v, want [2] (head should not move)", v)
	}

	if err := b.WriteAt(1, []float64{0}, 0); err == nil {
		t.Error("WriteAt with a positive offset should error")
	}
	if err := b.WriteAt(-3, []float64{0}, 0); err != ErrEmpty {
		t.Errorf("WriteAt beyond what has been written should be ErrEmpty, got %v", err)
	}
}

func TestBuffer_ReadInterpolated(t *testing.T) {
	b := New(Float64, 1, 4)
	b.Write([]float64{0}, 0)
	b.Write([]float64{10}, 1)

	v, ts, err := b.ReadInterpolated(-0.5)
	if err != nil {
		t.Fatalf("ReadInterpolated(-0.5): %v", err)
	}
	if v[0] != 5 {
		t.Errorf("ReadInterpolated(-0.5) = %v, want [5]", v)
	}
	if ts != 0.5 {
		t.Errorf("ReadInterpolated(-0.5) time = %v, want 0.5", ts)
	}
}

func TestReadElement_WrapsAndInterpolates(t *testing.T) {
	vec := []float64{1, 2, 3, 4}
	if got := ReadElement(vec, 0); got != 1 {
		t.Errorf("ReadElement(0) = %v, want 1", got)
	}
	if got := ReadElement(vec, -1); got != 4 {
		t.Errorf("ReadElement(-1) = %v, want 4 (wraps)", got)
	}
	if got := ReadElement(vec, 0.5); got != 1.5 {
		t.Errorf("ReadElement(0.5) = %v, want 1.5", got)
	}
}
