package mutation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/danielpatrickdp/mechanismd/internal/curve"
)

// ErrLaneBusy is returned by a Submit* call when its lane already has an
// unclaimed request in flight. Lanes are single-consumer and hold at
// most one pending request each; a caller that gets ErrLaneBusy should
// retry on its own schedule, the queue never blocks to wait for room.
var ErrLaneBusy = errors.New("mutation: lane busy")

// ErrRateLimited is returned by an insert-lane Submit* call when the
// caller is fitting or loading curves faster than insertBurstRate allows.
// Distinct from ErrLaneBusy so a caller can tell "back off entirely" from
// "one is already in flight, try again shortly".
var ErrRateLimited = errors.New("mutation: insert rate exceeded")

// insertBurstRate caps how often the insert lane accepts new fit/load
// requests from the RPC side; fitting a curve is the one lane operation
// expensive enough (disk or CPU-bound regression) to need its own
// throttle independent of the one-in-flight lane limit.
const insertBurstRate = 20 * time.Millisecond

// Trainer builds and persists Curves off the tick thread. modelstore.Store
// implements it; mutation depends only on this interface to avoid an
// import cycle between the two packages.
type Trainer interface {
	TrainFromMatrix(matrix [][]float64, phaseDotRef float64) (curve.Curve, error)
	LoadModel(name string) (curve.Curve, error)
	SaveModel(name string, snap curve.Params) error
}

// Queue is the non-blocking structural-change front door described by
// the three-lane model: RPC-facing Submit* calls never block the caller
// and never touch the arena directly, and the tick thread drains
// completed and pending work from opsCh at the top of every cycle
// without ever blocking on a lane worker.
type Queue struct {
	trainer Trainer
	log     *zap.SugaredLogger

	laneInsert chan Request
	laneDelete chan Request
	laneSave   chan Request

	opsCh       chan Op
	completedCh chan Completed

	insertLimiter *rate.Limiter

	done chan struct{}
	eg   *errgroup.Group
}

// New builds a Queue and starts its three lane workers under a shared
// errgroup, so Wait reports the first lane failure (if any) instead of
// leaking a stuck goroutine silently. Stop must be called to release
// them. A nil log is replaced with a no-op logger, same default as
// manager.New.
func New(trainer Trainer, log *zap.SugaredLogger) *Queue {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	q := &Queue{
		trainer:       trainer,
		log:           log,
		laneInsert:    make(chan Request, 1),
		laneDelete:    make(chan Request, 1),
		laneSave:      make(chan Request, 1),
		opsCh:         make(chan Op, 64),
		completedCh:   make(chan Completed, 64),
		insertLimiter: rate.NewLimiter(rate.Every(insertBurstRate), 1),
		done:          make(chan struct{}),
	}
	q.eg = &errgroup.Group{}
	q.startLanes()
	return q
}

// Stop signals the lane goroutines to exit once their current job (if
// any) finishes. It does not drain opsCh; callers should stop submitting
// new requests before calling Stop.
func (q *Queue) Stop() {
	close(q.done)
}

// Wait blocks until all three lane goroutines have exited after Stop,
// returning the first non-nil error any of them encountered.
func (q *Queue) Wait() error {
	return q.eg.Wait()
}

// SubmitInsertEmpty requests a degenerate zero-length VM resting at the
// origin (curve.NewEmpty); the insert lane fabricates it without
// touching the trainer.
func (q *Queue) SubmitInsertEmpty(dim int) (string, error) {
	return q.submitInsert(Request{Kind: InsertEmpty, Dim: dim})
}

// SubmitInsertFromMatrix requests a Curve fit from samples on the insert
// lane.
func (q *Queue) SubmitInsertFromMatrix(matrix [][]float64, phaseDotRef float64) (string, error) {
	return q.submitInsert(Request{Kind: InsertFromMatrix, Matrix: matrix, PhaseDotRef: phaseDotRef})
}

// SubmitInsertFromModel requests a Curve loaded from the named saved
// model on the insert lane.
func (q *Queue) SubmitInsertFromModel(model string) (string, error) {
	return q.submitInsert(Request{Kind: InsertFromModel, Model: model})
}

// SubmitReload requests that handle be replaced in place by a Curve
// freshly loaded from model, on the insert lane (a reload is fit work,
// same as any other insert).
func (q *Queue) SubmitReload(handle int64, model string) (string, error) {
	return q.submitInsert(Request{Kind: Reload, Handle: handle, Model: model})
}

func (q *Queue) submitInsert(req Request) (string, error) {
	if !q.insertLimiter.Allow() {
		return "", ErrRateLimited
	}
	return q.submit(req, q.laneInsert)
}

// SubmitDelete requests removal of handle on the delete lane.
func (q *Queue) SubmitDelete(handle int64) (string, error) {
	return q.submit(Request{Kind: Delete, Handle: handle}, q.laneDelete)
}

// SubmitSave requests that handle's curve be persisted under name on the
// save lane. The save lane worker will round-trip through the tick
// thread once to pull the curve's immutable fit parameters out of the
// arena before doing any disk I/O.
func (q *Queue) SubmitSave(handle int64, name string) (string, error) {
	return q.submit(Request{Kind: Save, Handle: handle, Model: name}, q.laneSave)
}

func (q *Queue) submit(req Request, lane chan Request) (string, error) {
	req.ID = uuid.New().String()
	select {
	case lane <- req:
		return req.ID, nil
	default:
		return "", ErrLaneBusy
	}
}

// Drain returns every Op currently waiting on opsCh without blocking.
// The tick thread calls this exactly once at the top of each cycle and
// applies the results to the arena in order.
func (q *Queue) Drain() []Op {
	var ops []Op
	for {
		select {
		case op := <-q.opsCh:
			ops = append(ops, op)
		default:
			return ops
		}
	}
}

// DrainCompleted returns every Completed currently waiting on
// completedCh without blocking. Callers use this purely for
// observability (this module's manager logs any non-nil Err); nothing
// about arena state depends on a caller ever calling this.
func (q *Queue) DrainCompleted() []Completed {
	var completed []Completed
	for {
		select {
		case c := <-q.completedCh:
			completed = append(completed, c)
		default:
			return completed
		}
	}
}

// postCompleted records a lane job's outcome without ever blocking the
// lane: if completedCh is full (no caller has drained it in a while)
// the entry is dropped and the drop itself is logged, since a Completed
// existing only to be observed is worthless if it can stall a worker.
func (q *Queue) postCompleted(c Completed) {
	select {
	case q.completedCh <- c:
	default:
		q.log.Warnw("mutation: completion channel full, dropping entry", "id", c.ID, "kind", c.Kind, "handle", c.Handle)
	}
}
