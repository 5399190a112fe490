package curve

// Stub is a fully deterministic Curve double for tests: every return
// value is a field the test sets directly, no projection math involved.
// Mirrors the teacher's own preference for small hand-populated structs
// over a mocking framework (see gate_test.go's makeState helper in the
// retrieval pack).
type Stub struct {
	DimVal         int
	StateVal       []float64
	StateDotVal    []float64
	PhaseVal       float64
	PhaseDotVal    float64
	PhaseDotRefVal float64
	DistanceVal    float64
	ProbabilityVal float64
	StiffnessVal   []float64
	DampingVal     []float64

	Active       bool
	Forward      bool
	Weighted     bool
	UpdateCalls  int
	LastPos      []float64
	LastVel      []float64
	LastDt       float64
}

func (s *Stub) Dim() int { return s.DimVal }

func (s *Stub) Update(pos, vel []float64, dt float64) {
	s.UpdateCalls++
	s.LastPos = append([]float64(nil), pos...)
	s.LastVel = append([]float64(nil), vel...)
	s.LastDt = dt
}

func (s *Stub) State(dst []float64) []float64    { return append(dst[:0], s.StateVal...) }
func (s *Stub) StateDot(dst []float64) []float64 { return append(dst[:0], s.StateDotVal...) }
func (s *Stub) Phase() float64                   { return s.PhaseVal }
func (s *Stub) PhaseDot() float64                { return s.PhaseDotVal }
func (s *Stub) PhaseDotRef() float64             { return s.PhaseDotRefVal }
func (s *Stub) Distance(_ []float64) float64     { return s.DistanceVal }
func (s *Stub) Probability(_ []float64) float64  { return s.ProbabilityVal }
func (s *Stub) Stiffness(dst []float64) []float64 { return append(dst[:0], s.StiffnessVal...) }
func (s *Stub) Damping(dst []float64) []float64   { return append(dst[:0], s.DampingVal...) }

func (s *Stub) SetActive(active bool)    { s.Active = active }
func (s *Stub) MoveForward(forward bool) { s.Forward = forward }
func (s *Stub) SetWeightedDist(w bool)   { s.Weighted = w }
