package mutation

import (
	"errors"
	"testing"
	"time"

	"github.com/danielpatrickdp/mechanismd/internal/curve"
)

type fakeTrainer struct {
	trainCalls int
	trainErr   error
	loadErr    error
	saveErr    error
	saved      []curve.Params
}

func (f *fakeTrainer) TrainFromMatrix(matrix [][]float64, phaseDotRef float64) (curve.Curve, error) {
	f.trainCalls++
	if f.trainErr != nil {
		return nil, f.trainErr
	}
	return curve.NewFromMatrix(len(matrix[0]), matrix, phaseDotRef), nil
}

func (f *fakeTrainer) LoadModel(name string) (curve.Curve, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return curve.NewEmpty(2), nil
}

func (f *fakeTrainer) SaveModel(name string, snap curve.Params) error {
	f.saved = append(f.saved, snap)
	return f.saveErr
}

func drainOne(t *testing.T, q *Queue) Op {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		ops := q.Drain()
		if len(ops) > 0 {
			return ops[0]
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for op")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSubmitInsertEmptyProducesInsertReadyOp(t *testing.T) {
	q := New(&fakeTrainer{}, nil)
	defer q.Stop()

	if _, err := q.SubmitInsertEmpty(3); err != nil {
		t.Fatalf("SubmitInsertEmpty: %v", err)
	}
	op := drainOne(t, q)
	if op.Kind != OpInsertReady || op.Curve == nil {
		t.Fatalf("expected insert-ready op with a curve, got %+v", op)
	}
	if op.Curve.Dim() != 3 {
		t.Fatalf("expected dim 3, got %d", op.Curve.Dim())
	}
}

func TestSubmitInsertFromMatrixUsesTrainer(t *testing.T) {
	tr := &fakeTrainer{}
	q := New(tr, nil)
	defer q.Stop()

	matrix := [][]float64{{0, 0}, {1, 1}}
	if _, err := q.SubmitInsertFromMatrix(matrix, 1.0); err != nil {
		t.Fatalf("SubmitInsertFromMatrix: %v", err)
	}
	op := drainOne(t, q)
	if op.Kind != OpInsertReady || op.Err != nil {
		t.Fatalf("unexpected op: %+v", op)
	}
	if tr.trainCalls != 1 {
		t.Fatalf("expected trainer to be called once, got %d", tr.trainCalls)
	}
}

func TestSubmitInsertFromMatrixPropagatesTrainerError(t *testing.T) {
	wantErr := errors.New("fit failed")
	tr := &fakeTrainer{trainErr: wantErr}
	q := New(tr, nil)
	defer q.Stop()

	if _, err := q.SubmitInsertFromMatrix([][]float64{{0}, {1}}, 1.0); err != nil {
		t.Fatalf("SubmitInsertFromMatrix: %v", err)
	}
	op := drainOne(t, q)
	if op.Err == nil || op.Curve != nil {
		t.Fatalf("expected failed insert with no curve, got %+v", op)
	}
}

func TestSubmitDeleteProducesDeleteRequestedOp(t *testing.T) {
	q := New(&fakeTrainer{}, nil)
	defer q.Stop()

	if _, err := q.SubmitDelete(42); err != nil {
		t.Fatalf("SubmitDelete: %v", err)
	}
	op := drainOne(t, q)
	if op.Kind != OpDeleteRequested || op.Handle != 42 {
		t.Fatalf("unexpected op: %+v", op)
	}
}

func TestSaveRoundTripCallsTrainerAfterTickFulfills(t *testing.T) {
	tr := &fakeTrainer{}
	q := New(tr, nil)
	defer q.Stop()

	if _, err := q.SubmitSave(7, "model-a"); err != nil {
		t.Fatalf("SubmitSave: %v", err)
	}
	op := drainOne(t, q)
	if op.Kind != OpSaveRequested || op.Handle != 7 {
		t.Fatalf("unexpected op: %+v", op)
	}

	op.Fulfill(curve.Params{Dim: 2, PhaseDotRef: 1.5}, nil)

	deadline := time.After(time.Second)
	for len(tr.saved) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for trainer.SaveModel")
		case <-time.After(time.Millisecond):
		}
	}
	if tr.saved[0].PhaseDotRef != 1.5 {
		t.Fatalf("unexpected saved params: %+v", tr.saved[0])
	}
}

func TestSaveRoundTripSkipsTrainerOnExtractError(t *testing.T) {
	tr := &fakeTrainer{}
	q := New(tr, nil)
	defer q.Stop()

	if _, err := q.SubmitSave(7, "model-a"); err != nil {
		t.Fatalf("SubmitSave: %v", err)
	}
	op := drainOne(t, q)
	op.Fulfill(curve.Params{}, errors.New("handle not found"))

	time.Sleep(20 * time.Millisecond)
	if len(tr.saved) != 0 {
		t.Fatalf("expected no save call, got %+v", tr.saved)
	}
}

func drainOneCompleted(t *testing.T, q *Queue) Completed {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		completed := q.DrainCompleted()
		if len(completed) > 0 {
			return completed[0]
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for completion")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSaveRoundTripReportsExtractErrorOnCompletion(t *testing.T) {
	tr := &fakeTrainer{}
	q := New(tr, nil)
	defer q.Stop()

	if _, err := q.SubmitSave(7, "model-a"); err != nil {
		t.Fatalf("SubmitSave: %v", err)
	}
	op := drainOne(t, q)
	wantErr := errors.New("handle not found")
	op.Fulfill(curve.Params{}, wantErr)

	c := drainOneCompleted(t, q)
	if c.Kind != Save || c.Handle != 7 || c.Err == nil {
		t.Fatalf("expected completed save reporting error, got %+v", c)
	}
}

func TestSaveRoundTripReportsTrainerErrorOnCompletion(t *testing.T) {
	wantErr := errors.New("disk full")
	tr := &fakeTrainer{saveErr: wantErr}
	q := New(tr, nil)
	defer q.Stop()

	if _, err := q.SubmitSave(7, "model-a"); err != nil {
		t.Fatalf("SubmitSave: %v", err)
	}
	op := drainOne(t, q)
	op.Fulfill(curve.Params{Dim: 2, PhaseDotRef: 1.5}, nil)

	c := drainOneCompleted(t, q)
	if c.Kind != Save || c.Handle != 7 || c.Model != "model-a" || c.Err == nil {
		t.Fatalf("expected completed save reporting trainer error, got %+v", c)
	}
	if len(tr.saved) != 1 {
		t.Fatalf("expected trainer.SaveModel to still be called, got %d calls", len(tr.saved))
	}
}

func TestSuccessfulSaveReportsNilErrorOnCompletion(t *testing.T) {
	tr := &fakeTrainer{}
	q := New(tr, nil)
	defer q.Stop()

	if _, err := q.SubmitSave(7, "model-a"); err != nil {
		t.Fatalf("SubmitSave: %v", err)
	}
	op := drainOne(t, q)
	op.Fulfill(curve.Params{Dim: 2, PhaseDotRef: 1.5}, nil)

	c := drainOneCompleted(t, q)
	if c.Err != nil {
		t.Fatalf("expected nil Err on successful save, got %+v", c)
	}
}

func TestLaneBusyRejectsSecondUndrainedSubmit(t *testing.T) {
	q := New(&fakeTrainer{}, nil)
	defer q.Stop()

	if _, err := q.SubmitDelete(1); err != nil {
		t.Fatalf("first SubmitDelete: %v", err)
	}
	if _, err := q.SubmitDelete(2); !errors.Is(err, ErrLaneBusy) {
		t.Fatalf("expected ErrLaneBusy, got %v", err)
	}
}

func TestInsertRateLimitRejectsBurst(t *testing.T) {
	q := New(&fakeTrainer{}, nil)
	defer q.Stop()

	if _, err := q.SubmitInsertEmpty(2); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	drainOne(t, q)
	if _, err := q.SubmitInsertEmpty(2); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on immediate second insert, got %v", err)
	}
}

func TestDrainReturnsEmptyWhenNothingPending(t *testing.T) {
	q := New(&fakeTrainer{}, nil)
	defer q.Stop()

	if ops := q.Drain(); len(ops) != 0 {
		t.Fatalf("expected no ops, got %+v", ops)
	}
}
