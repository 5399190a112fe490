package curve

import "math"

// Polyline is a reference Curve fit from a demonstration matrix by
// arclength-parameterised linear interpolation between consecutive
// samples. It stands in for the learned Gaussian-Mixture-Regression
// curve the original system used: good enough to exercise every method
// on the Curve interface, not a claim about trajectory-learning quality.
//
// InsertEmpty produces a degenerate single-point Polyline (see NewEmpty);
// InsertFromMatrix produces one fit from real samples (see NewFromMatrix).
type Polyline struct {
	dim int

	points   [][]float64 // arclength-ordered waypoints, len >= 1
	arcLen   []float64   // cumulative arclength up to points[i], len == len(points)
	totalLen float64

	stiffness []float64
	damping   []float64
	sigma     []float64 // per-axis spread, used by Distance/Probability when weighted

	phase       float64
	phaseDot    float64
	phaseDotRef float64
	forward     bool
	active      bool
	weighted    bool

	state    []float64
	stateDot []float64
}

// NewEmpty returns a degenerate Polyline anchored at the origin, the
// mutation.InsertEmpty case: it has no shape to attract toward, only a
// resting point at zero, with default gains.
func NewEmpty(dim int) *Polyline {
	origin := make([]float64, dim)
	return NewFromMatrix(dim, [][]float64{origin, origin}, 1.0)
}

// NewFromMatrix fits a Polyline to samples (each of length dim, in
// visitation order) with a nominal reference phase velocity of
// phaseDotRef units of arclength per second. Degenerate input (fewer than
// two distinct points) collapses to NewEmpty's single-point behavior.
func NewFromMatrix(dim int, samples [][]float64, phaseDotRef float64) *Polyline {
	pts := make([][]float64, len(samples))
	for i, s := range samples {
		p := make([]float64, dim)
		copy(p, s)
		pts[i] = p
	}
	if len(pts) < 2 {
		last := make([]float64, dim)
		if len(pts) == 1 {
			copy(last, pts[0])
		}
		pts = append(pts, last)
	}

	arc := make([]float64, len(pts))
	for i := 1; i < len(pts); i++ {
		arc[i] = arc[i-1] + euclidean(pts[i-1], pts[i])
	}

	stiffness := make([]float64, dim)
	damping := make([]float64, dim)
	sigma := make([]float64, dim)
	for i := range stiffness {
		stiffness[i] = 50.0
		damping[i] = 5.0
		sigma[i] = 0.05
	}

	p := &Polyline{
		dim:         dim,
		points:      pts,
		arcLen:      arc,
		totalLen:    arc[len(arc)-1],
		stiffness:   stiffness,
		damping:     damping,
		sigma:       sigma,
		phaseDotRef: phaseDotRef,
		forward:     true,
		state:       make([]float64, dim),
		stateDot:    make([]float64, dim),
	}
	copy(p.state, pts[0])
	return p
}

func (p *Polyline) Dim() int { return p.dim }

// Update advances phase either by self-driven integration (when Active)
// or by projecting pos onto the polyline, then refreshes State/StateDot.
func (p *Polyline) Update(pos, vel []float64, dt float64) {
	prevPhase := p.phase

	if p.active {
		step := p.phaseDotRef * dt
		if !p.forward {
			step = -step
		}
		p.phase = clamp(p.phase+step, 0, p.totalLen)
	} else {
		p.phase = p.projectPhase(pos)
	}

	if dt > 0 {
		p.phaseDot = (p.phase - prevPhase) / dt
	}

	pt, tangent := p.pointAndTangent(p.phase)
	copy(p.state, pt)
	speed := p.phaseDotRef
	if p.active {
		speed = p.phaseDot
	}
	for i := range p.stateDot {
		p.stateDot[i] = tangent[i] * speed
	}
}

func (p *Polyline) State(dst []float64) []float64    { return append(dst[:0], p.state...) }
func (p *Polyline) StateDot(dst []float64) []float64 { return append(dst[:0], p.stateDot...) }
func (p *Polyline) Phase() float64                   { return p.phase }
func (p *Polyline) PhaseDot() float64   { return p.phaseDot }
func (p *Polyline) PhaseDotRef() float64 {
	if p.forward {
		return p.phaseDotRef
	}
	return -p.phaseDotRef
}

// Distance returns the shortest distance from pos to any segment of the
// polyline, in the plain or weighted (per-axis-scaled) Euclidean metric.
func (p *Polyline) Distance(pos []float64) float64 {
	_, _, dist := p.nearestSegment(pos)
	return dist
}

// Probability returns a non-negative Gaussian-kernel goodness-of-fit
// score: 1 at zero distance, decaying with the curve's sigma.
func (p *Polyline) Probability(pos []float64) float64 {
	d := p.Distance(pos)
	avgSigma := 0.0
	for _, s := range p.sigma {
		avgSigma += s
	}
	avgSigma /= float64(len(p.sigma))
	if avgSigma <= 0 {
		avgSigma = 1e-6
	}
	return math.Exp(-(d * d) / (2 * avgSigma * avgSigma))
}

func (p *Polyline) Stiffness(dst []float64) []float64 { return append(dst[:0], p.stiffness...) }
func (p *Polyline) Damping(dst []float64) []float64   { return append(dst[:0], p.damping...) }

func (p *Polyline) SetActive(active bool)      { p.active = active }
func (p *Polyline) MoveForward(forward bool)   { p.forward = forward }
func (p *Polyline) SetWeightedDist(w bool)     { p.weighted = w }

// SetGains overrides the constant per-axis spring/damper gains fit at
// construction; used by tests and by model loading that carries saved
// gains alongside the sample matrix. Must only be called before the
// curve is handed to a manager — Params (see saveable.go) assumes these
// fields are immutable from that point on and reads them without any
// synchronization with the tick thread.
func (p *Polyline) SetGains(stiffness, damping []float64) {
	copy(p.stiffness, stiffness)
	copy(p.damping, damping)
}

// projectPhase finds the arclength position of the closest point on the
// polyline to pos.
func (p *Polyline) projectPhase(pos []float64) float64 {
	best, bestDist := 0.0, math.Inf(1)
	for i := 0; i+1 < len(p.points); i++ {
		t, pt := closestPointOnSegment(p.points[i], p.points[i+1], pos, p.weighted, p.sigma)
		d := p.metricDist(pt, pos)
		if d < bestDist {
			bestDist = d
			segLen := p.arcLen[i+1] - p.arcLen[i]
			best = p.arcLen[i] + t*segLen
		}
	}
	if len(p.points) == 1 {
		return 0
	}
	return best
}

// nearestSegment returns the index of the closest segment, the closest
// point on it, and the distance to pos.
func (p *Polyline) nearestSegment(pos []float64) (int, []float64, float64) {
	if len(p.points) == 1 {
		return 0, p.points[0], p.metricDist(p.points[0], pos)
	}
	bestIdx := 0
	var bestPt []float64
	bestDist := math.Inf(1)
	for i := 0; i+1 < len(p.points); i++ {
		_, pt := closestPointOnSegment(p.points[i], p.points[i+1], pos, p.weighted, p.sigma)
		d := p.metricDist(pt, pos)
		if d < bestDist {
			bestDist = d
			bestPt = pt
			bestIdx = i
		}
	}
	return bestIdx, bestPt, bestDist
}

func (p *Polyline) metricDist(a, b []float64) float64 {
	if !p.weighted {
		return euclidean(a, b)
	}
	var sum float64
	for i := range a {
		s := p.sigma[i]
		if s <= 0 {
			s = 1e-6
		}
		d := (a[i] - b[i]) / s
		sum += d * d
	}
	return math.Sqrt(sum)
}

// pointAndTangent returns the point at the given arclength and its unit
// tangent direction.
func (p *Polyline) pointAndTangent(phase float64) ([]float64, []float64) {
	if len(p.points) == 1 {
		return p.points[0], make([]float64, p.dim)
	}
	for i := 0; i+1 < len(p.points); i++ {
		if phase <= p.arcLen[i+1] || i+2 == len(p.points) {
			segLen := p.arcLen[i+1] - p.arcLen[i]
			t := 0.0
			if segLen > 0 {
				t = (phase - p.arcLen[i]) / segLen
			}
			t = clamp(t, 0, 1)
			pt := lerp(p.points[i], p.points[i+1], t)
			tangent := unit(sub(p.points[i+1], p.points[i]))
			return pt, tangent
		}
	}
	last := len(p.points) - 1
	return p.points[last], make([]float64, p.dim)
}

func closestPointOnSegment(a, b, pos []float64, weighted bool, sigma []float64) (float64, []float64) {
	ab := sub(b, a)
	ap := sub(pos, a)
	denom := dot(ab, ab)
	t := 0.0
	if denom > 0 {
		t = dot(ap, ab) / denom
	}
	t = clamp(t, 0, 1)
	return t, lerp(a, b, t)
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func sub(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func lerp(a, b []float64, t float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + (b[i]-a[i])*t
	}
	return out
}

func unit(v []float64) []float64 {
	n := math.Sqrt(dot(v, v))
	if n == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i := range v {
		out[i] = v[i] / n
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
