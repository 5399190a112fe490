// Package mixer implements the per-tick probabilistic blending that
// mixes many virtual mechanisms into a single guidance force.
package mixer

import "math"

// Mixer holds no configuration of its own — the blending mode is a
// parameter of each call, not something fixed at construction, because
// §3 specifies the mode travels with the tick input, not with any one
// VM. It does hold scratch buffers for its weights/force results,
// grown on demand and reused tick-to-tick by the one manager that owns
// it, so a steady-state Tick call never allocates.
type Mixer struct {
	weightsBuf []float64
	forceBuf   []float64
}

// New returns a ready-to-use Mixer. There is no configuration: every
// tunable (kappa, normalisation) is pinned by §4.2.
func New() *Mixer {
	return &Mixer{}
}

// Weights computes the per-VM coefficients for the given mode and raw
// scores: convex in Hard mode, unnormalised in Potential mode, and in
// Soft mode the normalised probabilities scaled by exp(-kappa*distance),
// so Soft weights sum to less than 1 unless every distance is 0. The returned
// slice aliases the Mixer's own scratch buffer and is only valid until
// the next call to Weights or Tick.
func (m *Mixer) Weights(mode Mode, scores []VMScore) []float64 {
	n := len(scores)
	m.weightsBuf = growFloat(m.weightsBuf, n)
	weights := m.weightsBuf
	for i := range weights {
		weights[i] = 0
	}
	if n == 0 {
		return weights
	}

	switch mode {
	case Hard:
		sum := 0.0
		for _, s := range scores {
			sum += s.Probability
		}
		if sum == 0 {
			return weights
		}
		for i, s := range scores {
			weights[i] = s.Probability / sum
		}
	case Potential:
		for i, s := range scores {
			weights[i] = math.Exp(-potentialKappa * s.Distance)
		}
	case Soft:
		sum := 0.0
		for _, s := range scores {
			sum += s.Probability
		}
		if sum == 0 {
			return weights
		}
		for i, s := range scores {
			weights[i] = math.Exp(-potentialKappa*s.Distance) * (s.Probability / sum)
		}
	}
	return weights
}

// Blend combines the per-VM weights and state into a single force vector
// of the same dimension as pos/vel:
//
//	f = sum_i w_i * ( K_i .* (c_i - pos) + B_i .* (cdot_i - vel) )
//
// where .* is elementwise multiplication of the (diagonal) gain vector.
// The returned slice aliases the Mixer's own scratch buffer and is only
// valid until the next call to Blend or Tick.
func (m *Mixer) Blend(pos, vel []float64, weights []float64, scores []VMScore) []float64 {
	dim := len(pos)
	m.forceBuf = growFloat(m.forceBuf, dim)
	force := m.forceBuf
	for d := range force {
		force[d] = 0
	}
	for i, w := range weights {
		if w == 0 {
			continue
		}
		s := scores[i]
		for d := 0; d < dim; d++ {
			spring := s.Stiffness[d] * (s.State[d] - pos[d])
			damper := s.Damping[d] * (s.StateDot[d] - vel[d])
			force[d] += w * (spring + damper)
		}
	}
	return force
}

// growFloat returns buf resliced to length n, reusing its backing array
// when it already has room; otherwise it allocates a new one. Used to
// keep the mixer's per-tick scratch buffers from reallocating once the
// arena size stops changing.
func growFloat(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}

// Tick is the composition of Weights and Blend used by the manager on
// every control tick.
func (m *Mixer) Tick(mode Mode, pos, vel []float64, scores []VMScore) (weights []float64, force []float64) {
	weights = m.Weights(mode, scores)
	force = m.Blend(pos, vel, weights, scores)
	return weights, force
}

// RawScore computes the mode-dependent scalar goodness-of-fit for a
// single VM, per §4.2's "Raw scoring rules": exp(-kappa*distance) in
// Potential mode, the probability otherwise. Weights applies the same
// rules inline and does not call it; the manager fills VMScore's
// Distance and Probability straight from the Curve.
func RawScore(mode Mode, distance, probability float64) float64 {
	switch mode {
	case Potential:
		return math.Exp(-potentialKappa * distance)
	default:
		return probability
	}
}
