// Package buffer implements the fixed-length ring of typed vector
// samples described in spec §4.1: one Buffer per signal instance,
// written on every update, read by both local consumers and the
// expression evaluator's history operators.
//
// Grounded on the teacher's log-abstraction role (types.Log /
// LogEntry / Dump in core/peer.go's FastRead) generalized from "ring of
// committed log entries read back for a fast local read" to "ring of
// timestamped vector samples read back with history offsets".
package buffer

import (
	"errors"
	"math"
)

var ErrEmpty = errors.New("buffer: no samples have been written yet")

// ElementType is the signal's scalar element type, spec §3.
type ElementType int

const (
	Int32 ElementType = iota
	Float32
	Float64
)

// Sample is one vector value with its timetag, stored as float64
// internally regardless of ElementType so history interpolation (spec
// §4.1) can run uniformly; every read returns float64 values, and no
// read converts back to the original element type.
type Sample struct {
	Vector []float64
	Time   float64 // seconds, arbitrary epoch — the caller supplies "now"
}

// Buffer is a ring of mlen vector samples for one signal instance.
type Buffer struct {
	elemType ElementType
	vecLen   int
	mlen     int

	samples []Sample // ring storage, length mlen
	head    int      // index of the most recently written sample
	count   int      // saturating count of samples written, caps at mlen
}

// New allocates a Buffer. mlen is the maximum history depth any consumer
// of this instance needs (spec §3); vecLen is the signal's vector length.
func New(elemType ElementType, vecLen, mlen int) *Buffer {
	if mlen < 1 {
		mlen = 1
	}
	samples := make([]Sample, mlen)
	for i := range samples {
		samples[i].Vector = make([]float64, vecLen)
	}
	return &Buffer{elemType: elemType, vecLen: vecLen, mlen: mlen, samples: samples, head: -1}
}

func (b *Buffer) VectorLength() int { return b.vecLen }
func (b *Buffer) ElementType() ElementType { return b.elemType }
func (b *Buffer) MaxLen() int { return b.mlen }

// Write advances the ring index and stores vec with time, per spec
// §4.1's "index advances modulo mlen on every write; timetag written
// with every sample". vec must have VectorLength() elements; shorter
// vectors are zero-padded, longer ones truncated (callers should not
// normally hit either case — map slots validate vector length compatibility).
func (b *Buffer) Write(vec []float64, time float64) {
	b.head = (b.head + 1) % b.mlen
	dst := b.samples[b.head].Vector
	for i := range dst {
		if i < len(vec) {
			dst[i] = vec[i]
		} else {
			dst[i] = 0
		}
	}
	b.samples[b.head].Time = time
	if b.count < b.mlen {
		b.count++
	}
}

// WriteAt overwrites the sample at the given history offset (0 or
// negative, within what has already been written) without advancing
// the ring head, implementing spec §4.4's y{-k} write form ("history
// write y{-k} for seeding past samples").
func (b *Buffer) WriteAt(offset int, vec []float64, time float64) error {
	if offset > 0 || -offset >= b.mlen || -offset >= b.count {
		return ErrEmpty
	}
	idx := (b.head + offset + b.mlen) % b.mlen
	dst := b.samples[idx].Vector
	for i := range dst {
		if i < len(vec) {
			dst[i] = vec[i]
		} else {
			dst[i] = 0
		}
	}
	b.samples[idx].Time = time
	return nil
}

// NumSamples is the saturating count of samples written so far, spec §4.1.
func (b *Buffer) NumSamples() int { return b.count }

// Read returns the vector at the given history offset, an integer in
// [-(mlen-1), 0] where 0 is the most recent write. Returns ErrEmpty if
// nothing has been written at that depth yet — callers (the expression
// evaluator in particular) must abort the current evaluation without
// side effect on this error, per spec §4.1.
func (b *Buffer) Read(offset int) ([]float64, float64, error) {
	if offset > 0 || -offset >= b.mlen {
		return nil, 0, ErrEmpty
	}
	if b.count == 0 || -offset >= b.count {
		return nil, 0, ErrEmpty
	}
	idx := (b.head + offset + b.mlen) % b.mlen
	s := b.samples[idx]
	out := make([]float64, len(s.Vector))
	copy(out, s.Vector)
	return out, s.Time, nil
}

// ReadInterpolated implements spec §4.1's fractional history offset:
// "Fractional history offsets produce a linear interpolation between
// samples". offset may be e.g. -1.5, blending the samples at -1 and -2.
func (b *Buffer) ReadInterpolated(offset float64) ([]float64, float64, error) {
	lo := int(math.Floor(offset))
	hi := lo + 1
	if hi > 0 {
		hi = 0
	}
	frac := offset - float64(lo)
	if frac == 0 {
		return b.Read(lo)
	}

	loVec, loTime, err := b.Read(lo)
	if err != nil {
		return nil, 0, err
	}
	hiVec, hiTime, err := b.Read(hi)
	if err != nil {
		return nil, 0, err
	}
	out := make([]float64, len(loVec))
	for i := range out {
		out[i] = loVec[i] + (hiVec[i]-loVec[i])*frac
	}
	t := loTime + (hiTime-loTime)*frac
	return out, t, nil
}

// ReadElement returns a single vector element at the given (possibly
// fractional, possibly negative) index, wrapping and interpolating
// adjacent elements per spec §4.1: "negative fractional vector indices
// likewise interpolate adjacent vector elements (wrapping)".
func ReadElement(vec []float64, index float64) float64 {
	n := len(vec)
	if n == 0 {
		return 0
	}
	lo := int(math.Floor(index))
	frac := index - float64(lo)
	loIdx := wrapIndex(lo, n)
	if frac == 0 {
		return vec[loIdx]
	}
	hiIdx := wrapIndex(lo+1, n)
	return vec[loIdx] + (vec[hiIdx]-vec[loIdx])*frac
}

func wrapIndex(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
