// Package curve defines the abstract virtual-mechanism trajectory contract.
//
// The Manager never learns a curve itself: it drives whatever Curve
// implementation it is handed through this interface. Fitting a curve to
// demonstration data (Gaussian-Mixture Regression in the original system)
// is explicitly out of scope here; the reference implementations in this
// package are ordinary geometric projections, good enough to exercise the
// Manager's blending and activation logic without pulling in a learning
// dependency the rest of the module never needs.
package curve

// Curve is a parameterised trajectory in a fixed-dimension task space.
//
// Implementations are owned exclusively by a single manager.VmEntry; the
// manager is the only caller and calls every method from the tick thread
// except where noted. No method may block or allocate in a way that would
// violate the tick's real-time budget once the curve has reached steady
// state. A Polyline never grows its state/stateDot slices after
// construction, but its projection helpers allocate small temporary
// slices on every Update and Distance call.
type Curve interface {
	// Dim returns the task-space dimension this curve was built for.
	Dim() int

	// Update advances the curve's internal phase from the latest measured
	// position and velocity. dt must be > 0. Safe to call at any dt.
	Update(pos, vel []float64, dt float64)

	// State appends the closest point on the curve to the last Update
	// call onto dst and returns the resulting slice, following the
	// append-into-dst convention (like time.Time.AppendFormat): pass
	// dst[:0] with cap >= Dim() to avoid allocating on the tick path.
	State(dst []float64) []float64

	// StateDot appends the tangent velocity at State() onto dst and
	// returns the resulting slice; same convention as State.
	StateDot(dst []float64) []float64

	// Phase returns the scalar progress variable, 0 at the start of the
	// curve and monotonically increasing under forward motion.
	Phase() float64

	// PhaseDot returns the current rate of change of Phase.
	PhaseDot() float64

	// PhaseDotRef returns the nominal (reference) phase velocity the
	// curve would replay at if self-driving.
	PhaseDotRef() float64

	// Distance returns a non-negative goodness-of-fit distance between
	// pos and the curve.
	Distance(pos []float64) float64

	// Probability returns a non-negative, finite goodness-of-fit score.
	Probability(pos []float64) float64

	// Stiffness appends the per-axis spring gain K used in the blended
	// force K*(state-pos) onto dst; same append-into-dst convention.
	Stiffness(dst []float64) []float64

	// Damping appends the per-axis damper gain B used in the blended
	// force B*(stateDot-vel) onto dst; same append-into-dst convention.
	Damping(dst []float64) []float64

	// SetActive toggles autonomous self-driving of the phase. When active,
	// subsequent Update calls advance phase internally rather than from
	// projecting pos onto the curve.
	SetActive(active bool)

	// MoveForward sets the direction of phase integration.
	MoveForward(forward bool)

	// SetWeightedDist selects a Mahalanobis-like weighted distance metric
	// in place of the plain Euclidean one, when the implementation
	// supports it.
	SetWeightedDist(weighted bool)
}
