package mutation

import "github.com/danielpatrickdp/mechanismd/internal/curve"

// Kind identifies which structural change a Mutation performs.
type Kind string

const (
	InsertEmpty      Kind = "insert_empty"
	InsertFromMatrix Kind = "insert_from_matrix"
	InsertFromModel  Kind = "insert_from_model"
	Delete           Kind = "delete"
	Save             Kind = "save"
	Reload           Kind = "reload_from_model"
)

// Lane identifies which of the three single-consumer worker lanes a
// Mutation's expensive work runs on. Inserts are heavy (curve fitting or
// loading); deletes and saves are light but must not be reordered with
// respect to each other within their own lane.
type Lane string

const (
	LaneInsert Lane = "insert"
	LaneDelete Lane = "delete"
	LaneSave   Lane = "save"
)

func (k Kind) Lane() Lane {
	switch k {
	case InsertEmpty, InsertFromMatrix, InsertFromModel, Reload:
		return LaneInsert
	case Delete:
		return LaneDelete
	case Save:
		return LaneSave
	default:
		return LaneInsert
	}
}

// Request is a submission from the RPC side, before the worker lane has
// done any work. ID correlates a Request with its eventual Completed
// entry in logs.
type Request struct {
	ID     string
	Kind   Kind
	Handle int64       // Delete, Save, Reload
	Model  string      // InsertFromModel, Save (save name), Reload
	Dim    int         // InsertEmpty
	Matrix [][]float64 // InsertFromMatrix

	// PhaseDotRef is the nominal reference phase velocity an
	// InsertFromMatrix fit is given; it is passed to the trainer as is,
	// zero included.
	PhaseDotRef float64
}

// Completed is what a worker lane posts to the queue's completion
// channel once its job has actually finished, independent of and in
// addition to the Op a lane may also send to opsCh for the tick to
// apply. Completed exists purely for observability: DrainCompleted lets
// a caller (the manager, in this module's wiring) log worker outcomes
// without the tick's own apply path needing to know about them. A
// Completed with a non-nil Err represents a worker-side failure and
// carries no Curve.
type Completed struct {
	ID     string
	Kind   Kind
	Handle int64
	Curve  curve.Curve
	Model  string
	Err    error
}

// OpKind identifies what a tick-drained Op asks the manager to do. Every
// Op flows through the same single opsCh that the tick reads
// non-blockingly at the top of every cycle; a lane worker is the only
// thing that ever writes to opsCh.
type OpKind string

const (
	// OpInsertReady carries a freshly built Curve (fit or loaded off the
	// tick thread by the insert lane) ready to be published into the
	// arena.
	OpInsertReady OpKind = "insert_ready"
	// OpDeleteRequested asks the tick to remove Handle from the arena.
	OpDeleteRequested OpKind = "delete_requested"
	// OpSaveRequested is the tick side of a save round-trip: the save
	// lane is blocked reading response, waiting for the tick to fill in
	// a saveExtract for Handle and send it back.
	OpSaveRequested OpKind = "save_requested"
)

// saveExtract is what the tick thread hands back to the save lane after
// pulling a curve's immutable fit parameters out of the arena. Snapshot
// is the zero value and Err is set if Handle no longer exists or its
// Curve does not implement curve.Saveable.
type saveExtract struct {
	Snapshot curve.Params
	Err      error
}

// Op is a single unit of work drained by the tick thread from opsCh. It
// is deliberately not exported field-by-field beyond what the manager
// needs: response is unexported because only this package's lane
// workers ever construct or read one.
type Op struct {
	ID     string
	Kind   OpKind
	Source Kind // the original Request.Kind — tells an OpInsertReady apart from a Reload
	Handle int64

	Curve curve.Curve // OpInsertReady
	Model string      // OpInsertReady, for telemetry/logging
	Err   error       // OpInsertReady: worker-side failure, no Curve to apply

	response chan saveExtract // OpSaveRequested only, buffered size 1
}

// Fulfill is called by the tick thread once it has produced (or failed
// to produce) the save extract for an OpSaveRequested. It never blocks:
// response is always buffered with room for exactly one value, and
// exactly one Op ever writes to it.
func (o Op) Fulfill(snap curve.Params, err error) {
	o.response <- saveExtract{Snapshot: snap, Err: err}
}
