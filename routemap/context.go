package routemap

import (
	"github.com/libmapper/libmapper-sub001/expr"
	"github.com/libmapper/libmapper-sub001/signal"
)

// InstanceContext implements expr.Context for one evaluation of a map's
// expression against a single resolved instance identity: one
// *signal.Instance per source slot (already resolved through the
// id-map by the caller, device/network's job, not routemap's) and one
// destination instance.
type InstanceContext struct {
	SourceInstances []*signal.Instance
	SourceSignals   []*signal.Signal // owning signal of each source slot, for DimInstance/DimSignal gathers
	Dest            *signal.Instance
	Now             float64
	Latest          int // which source slot most recently produced, for x$$

	alive bool
	muted bool
}

// NewInstanceContext seeds alive/muted from the destination instance's
// persisted state so a `muted = 1` (or `alive = 0`) assignment from a
// previous evaluation is still in effect on this one; a destination
// instance that does not exist yet (first evaluation) seeds alive=true,
// matching "an instance under evaluation is alive by construction".
func NewInstanceContext(sources []*signal.Instance, sourceSignals []*signal.Signal, dest *signal.Instance, now float64, latest int) *InstanceContext {
	c := &InstanceContext{SourceInstances: sources, SourceSignals: sourceSignals, Dest: dest, Now: now, Latest: latest}
	if dest != nil {
		c.alive = dest.Status.Has(signal.StatusActive)
		c.muted = dest.Muted
	} else {
		c.alive = true
	}
	return c
}

// Persist writes the context's final muted flag back onto the
// destination instance, so the next NewInstanceContext for this same
// instance observes what the expression last assigned. alive is not
// written back: the next context derives it from the destination's
// StatusActive bit.
func (c *InstanceContext) Persist() {
	if c.Dest != nil {
		c.Dest.Muted = c.muted
	}
}

func (c *InstanceContext) NumSources() int { return len(c.SourceInstances) }

func (c *InstanceContext) ReadSource(src int, histOffset float64) ([]float64, float64, bool) {
	if src < 0 || src >= len(c.SourceInstances) || c.SourceInstances[src] == nil {
		return nil, 0, false
	}
	v, t, err := c.SourceInstances[src].Buffer.ReadInterpolated(histOffset)
	if err != nil {
		return nil, 0, false
	}
	return v, t, true
}

func (c *InstanceContext) ReadSourceWindow(src int, n int) ([][]float64, bool) {
	if src < 0 || src >= len(c.SourceInstances) || c.SourceInstances[src] == nil {
		return nil, false
	}
	buf := c.SourceInstances[src].Buffer
	avail := buf.NumSamples()
	if n <= 0 || n > avail {
		n = avail
	}
	if n == 0 {
		return nil, false
	}
	out := make([][]float64, 0, n)
	for i := n - 1; i >= 0; i-- {
		v, _, err := buf.Read(-i)
		if err != nil {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func (c *InstanceContext) SourceTime(src int) float64 {
	if src < 0 || src >= len(c.SourceInstances) || c.SourceInstances[src] == nil {
		return 0
	}
	_, t, _ := c.SourceInstances[src].Buffer.Read(0)
	return t
}

func (c *InstanceContext) LatestSource() int { return c.Latest }

func (c *InstanceContext) ReadDst(histOffset float64) ([]float64, float64, bool) {
	if c.Dest == nil {
		return nil, 0, false
	}
	v, t, err := c.Dest.Buffer.ReadInterpolated(histOffset)
	if err != nil {
		return nil, 0, false
	}
	return v, t, true
}

func (c *InstanceContext) WriteDst(histOffset float64, vec []float64) {
	if c.Dest == nil {
		return
	}
	if histOffset == 0 {
		c.Dest.Buffer.Write(vec, c.Now)
		return
	}
	_ = c.Dest.Buffer.WriteAt(int(histOffset), vec, c.Now)
}

func (c *InstanceContext) DstTime() float64 {
	if c.Dest == nil {
		return 0
	}
	_, t, _ := c.Dest.Buffer.Read(0)
	return t
}

func (c *InstanceContext) Var(name string) []float64 {
	if c.Dest == nil {
		return nil
	}
	return c.Dest.Var(name)
}

func (c *InstanceContext) SetVar(name string, v []float64) {
	if c.Dest != nil {
		c.Dest.SetVar(name, v)
	}
}

func (c *InstanceContext) Alive() bool     { return c.alive }
func (c *InstanceContext) SetAlive(v bool) { c.alive = v }
func (c *InstanceContext) Muted() bool     { return c.muted }
func (c *InstanceContext) SetMuted(v bool) { c.muted = v }

// State and SetState thread schmitt()/ema()'s memory through the
// destination instance's CallState, the same per-instance persistence
// Var/SetVar already use for user variables.
func (c *InstanceContext) State(key int) ([]float64, bool) {
	if c.Dest == nil {
		return nil, false
	}
	return c.Dest.State(key)
}

func (c *InstanceContext) SetState(key int, v []float64) {
	if c.Dest != nil {
		c.Dest.SetState(key, v)
	}
}

func (c *InstanceContext) Instances(src int) []expr.InstanceValue {
	if src < 0 || src >= len(c.SourceSignals) || c.SourceSignals[src] == nil {
		return nil
	}
	insts := c.SourceSignals[src].ActiveInstances()
	out := make([]expr.InstanceValue, 0, len(insts))
	for _, inst := range insts {
		vec, t, err := inst.Buffer.Read(0)
		if err != nil {
			continue
		}
		out = append(out, expr.InstanceValue{Vector: vec, Time: t, Alive: true})
	}
	return out
}

func (c *InstanceContext) AllSources() [][]float64 {
	out := make([][]float64, 0, len(c.SourceInstances))
	for _, inst := range c.SourceInstances {
		if inst == nil {
			continue
		}
		v, _, err := inst.Buffer.Read(0)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
