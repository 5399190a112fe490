package manager

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/mechanismd/internal/automaton"
	"github.com/danielpatrickdp/mechanismd/internal/config"
	"github.com/danielpatrickdp/mechanismd/internal/curve"
	"github.com/danielpatrickdp/mechanismd/internal/mixer"
	"github.com/danielpatrickdp/mechanismd/internal/mutation"
)

type nopTrainer struct{}

func (nopTrainer) TrainFromMatrix(matrix [][]float64, phaseDotRef float64) (curve.Curve, error) {
	return curve.NewFromMatrix(len(matrix[0]), matrix, phaseDotRef), nil
}
func (nopTrainer) LoadModel(name string) (curve.Curve, error) { return curve.NewEmpty(2), nil }
func (nopTrainer) SaveModel(name string, snap curve.Params) error { return nil }

func newTestManager(t *testing.T, dim int) (*Manager, *mutation.Queue) {
	t.Helper()
	cfg := config.Default()
	cfg.PositionDim = dim
	q := mutation.New(nopTrainer{}, nil)
	t.Cleanup(q.Stop)
	m, err := New(cfg, q, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, q
}

func mustDrainToArena(t *testing.T, m *Manager, dim int) {
	t.Helper()
	pos := make([]float64, dim)
	vel := make([]float64, dim)
	for i := 0; i < 1000; i++ {
		m.Update(pos, vel, 0.01, mixer.Potential)
		if m.GetVMCount() > 0 {
			return
		}
	}
	t.Fatal("insert never reached the arena")
}

func TestZeroVMTickReturnsZeroForce(t *testing.T) {
	m, _ := newTestManager(t, 2)
	force := m.Update([]float64{1, 2}, []float64{0, 0}, 0.01, mixer.Potential)
	if force[0] != 0 || force[1] != 0 {
		t.Fatalf("expected zero force, got %v", force)
	}
}

func TestDimensionalClosure(t *testing.T) {
	m, _ := newTestManager(t, 3)
	force := m.Update([]float64{1, 1, 1}, []float64{0, 0, 0}, 0.01, mixer.Potential)
	if len(force) != 3 {
		t.Fatalf("expected dim 3, got %d", len(force))
	}
	for _, f := range force {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			t.Fatalf("non-finite force component: %v", force)
		}
	}
}

func TestUpdatePanicsOnDimensionMismatch(t *testing.T) {
	m, _ := newTestManager(t, 2)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on dimension mismatch")
		}
	}()
	m.Update([]float64{1, 2, 3}, []float64{0, 0}, 0.01, mixer.Potential)
}

func TestUpdatePanicsOnNonPositiveDt(t *testing.T) {
	m, _ := newTestManager(t, 2)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on dt <= 0")
		}
	}()
	m.Update([]float64{1, 2}, []float64{0, 0}, 0, mixer.Potential)
}

func TestInsertEmptyBecomesVisibleAndScores(t *testing.T) {
	m, q := newTestManager(t, 2)
	if _, err := q.SubmitInsertEmpty(2); err != nil {
		t.Fatalf("SubmitInsertEmpty: %v", err)
	}
	mustDrainToArena(t, m, 2)
	if m.GetVMCount() != 1 {
		t.Fatalf("expected 1 VM, got %d", m.GetVMCount())
	}
	// The empty curve rests at the origin, so at pos=(0,0) its Potential
	// weight is exp(0) = 1 on the tick that inserted it.
	if s := m.GetScale(1); math.Abs(s-1) > 1e-9 {
		t.Fatalf("expected the new VM to score 1 in Potential mode, got %v", s)
	}
}

func TestDeleteRemovesVM(t *testing.T) {
	m, q := newTestManager(t, 2)
	if _, err := q.SubmitInsertEmpty(2); err != nil {
		t.Fatalf("SubmitInsertEmpty: %v", err)
	}
	mustDrainToArena(t, m, 2)

	var handle int64
	for h := range m.byHandle {
		handle = h
	}
	if _, err := q.SubmitDelete(handle); err != nil {
		t.Fatalf("SubmitDelete: %v", err)
	}
	for i := 0; i < 1000 && m.GetVMCount() > 0; i++ {
		m.Update([]float64{0, 0}, []float64{0, 0}, 0.01, mixer.Potential)
	}
	if m.GetVMCount() != 0 {
		t.Fatalf("expected VM removed, count=%d", m.GetVMCount())
	}
}

func TestSaveRoundTripThroughTick(t *testing.T) {
	m, q := newTestManager(t, 2)
	if _, err := q.SubmitInsertFromMatrix([][]float64{{0, 0}, {1, 1}}, 1.0); err != nil {
		t.Fatalf("SubmitInsertFromMatrix: %v", err)
	}
	mustDrainToArena(t, m, 2)

	var handle int64
	for h := range m.byHandle {
		handle = h
	}
	if _, err := q.SubmitSave(handle, "model-x"); err != nil {
		t.Fatalf("SubmitSave: %v", err)
	}
	// The save round-trip needs several ticks: one for the tick to see
	// OpSaveRequested and Fulfill it, and the lane needs to actually
	// run its goroutine to consume the fulfilled response.
	for i := 0; i < 1000; i++ {
		m.Update([]float64{0, 0}, []float64{0, 0}, 0.01, mixer.Potential)
	}
}

func TestTickDeterminismWithStubCurves(t *testing.T) {
	m, _ := newTestManager(t, 2)
	m.entries = []*VmEntry{
		{Handle: 1, Curve: &curve.Stub{
			DimVal: 2, StateVal: []float64{1, 0}, StateDotVal: []float64{0, 0},
			StiffnessVal: []float64{1, 1}, DampingVal: []float64{0, 0},
			DistanceVal: 0, ProbabilityVal: 1,
		}},
	}
	m.byHandle[1] = m.entries[0]
	m.entries[0].Autom = newTestAutomaton(m)

	f1 := append([]float64(nil), m.Update([]float64{0, 0}, []float64{0, 0}, 0.01, mixer.Potential)...)
	f2 := m.Update([]float64{0, 0}, []float64{0, 0}, 0.01, mixer.Potential)
	if f1[0] != f2[0] || f1[1] != f2[1] {
		t.Fatalf("expected identical force vectors, got %v vs %v", f1, f2)
	}
}

func TestSingleVMPotentialIdentity(t *testing.T) {
	m, _ := newTestManager(t, 2)
	stub := &curve.Stub{
		DimVal: 2, StateVal: []float64{1, 0}, StateDotVal: []float64{0, 0},
		StiffnessVal: []float64{1, 1}, DampingVal: []float64{0, 0},
		DistanceVal: 0, ProbabilityVal: 1,
	}
	m.entries = []*VmEntry{{Handle: 1, Curve: stub, Autom: newTestAutomaton(m)}}
	m.byHandle[1] = m.entries[0]

	force := m.Update([]float64{0, 0}, []float64{0, 0}, 0.01, mixer.Potential)
	if math.Abs(force[0]-1) > 1e-9 || math.Abs(force[1]) > 1e-9 {
		t.Fatalf("expected force (1,0), got %v", force)
	}
}

func TestStopReturnsAutoVMToManual(t *testing.T) {
	m, _ := newTestManager(t, 2)
	cfg := config.Default()
	cfg.PositionDim = 2
	cfg.UseAutomaton = true
	m.useAutomaton = true

	stub := &curve.Stub{
		DimVal: 2, StateVal: []float64{0, 0}, StateDotVal: []float64{0, 0},
		StiffnessVal: []float64{1, 1}, DampingVal: []float64{0, 0},
		PhaseDotVal: 1.0, PhaseDotRefVal: 1.0,
	}
	m.entries = []*VmEntry{{Handle: 1, Curve: stub, Autom: newTestAutomaton(m)}}
	m.byHandle[1] = m.entries[0]
	m.collisionDetected = false

	// Drive to Auto: phase_dot_preauto_th + delta then phase_dot_ref + phase_dot_th - delta.
	stub.PhaseDotVal = m.phaseDotPreautoTh + 0.01
	m.Update([]float64{0, 0}, []float64{0, 0}, 0.01, mixer.Potential)
	stub.PhaseDotVal = stub.PhaseDotRefVal + m.phaseDotTh - 0.01
	m.Update([]float64{0, 0}, []float64{0, 0}, 0.01, mixer.Potential)
	if !m.OnVM() {
		t.Fatal("expected VM to be Auto before Stop")
	}

	m.Stop()
	m.Update([]float64{0, 0}, []float64{0, 0}, 0.01, mixer.Potential)
	if m.OnVM() {
		t.Fatal("expected Stop to return the VM to Manual")
	}
}

func newTestAutomaton(m *Manager) *automaton.Automaton {
	return automaton.New(m.automatonMode, m.phaseDotTh, m.phaseDotPreautoTh)
}
