package curve

// Params is the immutable, already-fit shape of a curve: the part of a
// Curve's state that never changes after construction (§9: "the Curve's
// internal state ... is immutable after construction in the common
// case"). It is safe to read concurrently with the owning curve's tick-
// thread-only mutable state (phase, active, direction) from the moment
// the curve is published to the manager, because nothing ever writes to
// these fields again after that point.
type Params struct {
	Dim         int
	Points      [][]float64
	Stiffness   []float64
	Damping     []float64
	PhaseDotRef float64
}

// Saveable is implemented by Curve types whose fit parameters can be
// serialised to a model file. Not every Curve needs to support this —
// only ones that came from, or can be written back to, the model
// catalogue.
type Saveable interface {
	Params() Params
}

// Params returns a copy of the Polyline's immutable fit parameters.
// Safe to call from any goroutine once the Polyline has been published
// to a manager; see the Params doc comment for why.
func (p *Polyline) Params() Params {
	pts := make([][]float64, len(p.points))
	for i, pt := range p.points {
		pts[i] = append([]float64(nil), pt...)
	}
	return Params{
		Dim:         p.dim,
		Points:      pts,
		Stiffness:   append([]float64(nil), p.stiffness...),
		Damping:     append([]float64(nil), p.damping...),
		PhaseDotRef: p.phaseDotRef,
	}
}
