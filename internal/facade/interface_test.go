package facade

import (
	"testing"
	"time"

	"github.com/danielpatrickdp/mechanismd/internal/config"
	"github.com/danielpatrickdp/mechanismd/internal/curve"
	"github.com/danielpatrickdp/mechanismd/internal/mixer"
	"github.com/danielpatrickdp/mechanismd/internal/telemetry"
)

type fakeTrainer struct{}

func (fakeTrainer) TrainFromMatrix(matrix [][]float64, phaseDotRef float64) (curve.Curve, error) {
	return curve.NewFromMatrix(len(matrix[0]), matrix, phaseDotRef), nil
}
func (fakeTrainer) LoadModel(name string) (curve.Curve, error)          { return curve.NewEmpty(2), nil }
func (fakeTrainer) SaveModel(name string, snap curve.Params) error { return nil }

func newTestInterface(t *testing.T) *Interface {
	t.Helper()
	cfg := config.Default()
	cfg.PositionDim = 2
	f, err := New(cfg, fakeTrainer{}, &telemetry.RecordingSink{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func tickUntil(t *testing.T, f *Interface, cond func() bool) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		f.Update([]float64{0, 0}, []float64{0, 0}, 0.01, mixer.Potential)
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition never became true")
		default:
		}
	}
}

func TestInsertVMBecomesVisibleThroughAccessor(t *testing.T) {
	f := newTestInterface(t)
	if _, err := f.InsertVM(2); err != nil {
		t.Fatalf("InsertVM: %v", err)
	}
	tickUntil(t, f, func() bool { return f.GetVMCount() == 1 })
}

func TestAccessorsReturnZeroValueForUnknownHandle(t *testing.T) {
	f := newTestInterface(t)
	f.Update([]float64{0, 0}, []float64{0, 0}, 0.01, mixer.Potential)
	if pos := f.GetVMPosition(999); pos != nil {
		t.Fatalf("expected nil position for unknown handle, got %v", pos)
	}
	if f.GetPhase(999) != 0 || f.GetScale(999) != 0 {
		t.Fatal("expected zero phase/scale for unknown handle")
	}
}

func TestStopClearsOnVM(t *testing.T) {
	f := newTestInterface(t)
	f.Stop()
	f.Update([]float64{0, 0}, []float64{0, 0}, 0.01, mixer.Potential)
	if f.OnVM() {
		t.Fatal("expected no VM active with an empty arena")
	}
}
