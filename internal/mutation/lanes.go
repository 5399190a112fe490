package mutation

import "github.com/danielpatrickdp/mechanismd/internal/curve"

// startLanes launches the three single-consumer lane goroutines under
// q.eg. Each lane owns exactly one Request channel and never runs more
// than one job at a time; that is what makes SubmitX's "lane busy"
// backpressure meaningful.
func (q *Queue) startLanes() {
	q.eg.Go(q.runInsertLane)
	q.eg.Go(q.runDeleteLane)
	q.eg.Go(q.runSaveLane)
}

// runInsertLane fits or loads a Curve off the tick thread, then hands
// the finished Curve to the tick via opsCh. Building the Curve here is
// safe without any synchronization because nobody else can see it until
// the tick thread publishes it into the arena.
func (q *Queue) runInsertLane() error {
	for {
		select {
		case <-q.done:
			return nil
		case req := <-q.laneInsert:
			op := q.buildInsertOp(req)
			select {
			case q.opsCh <- op:
			case <-q.done:
				return nil
			}
			q.postCompleted(Completed{ID: op.ID, Kind: op.Source, Handle: op.Handle, Curve: op.Curve, Model: op.Model, Err: op.Err})
		}
	}
}

func (q *Queue) buildInsertOp(req Request) Op {
	op := Op{ID: req.ID, Kind: OpInsertReady, Source: req.Kind, Handle: req.Handle, Model: req.Model}
	switch req.Kind {
	case InsertEmpty:
		op.Curve = curve.NewEmpty(req.Dim)
	case InsertFromMatrix:
		c, err := q.trainer.TrainFromMatrix(req.Matrix, req.PhaseDotRef)
		op.Curve, op.Err = c, err
	case InsertFromModel, Reload:
		c, err := q.trainer.LoadModel(req.Model)
		op.Curve, op.Err = c, err
	}
	return op
}

// runDeleteLane forwards delete requests to the tick verbatim; deletion
// itself is arena work that only the tick thread may perform, so
// this lane exists purely for backpressure symmetry with insert and
// save, as called for by the three-lane model.
func (q *Queue) runDeleteLane() error {
	for {
		select {
		case <-q.done:
			return nil
		case req := <-q.laneDelete:
			op := Op{ID: req.ID, Kind: OpDeleteRequested, Handle: req.Handle}
			select {
			case q.opsCh <- op:
			case <-q.done:
				return nil
			}
			q.postCompleted(Completed{ID: op.ID, Kind: Delete, Handle: op.Handle})
		}
	}
}

// runSaveLane performs the two-phase save round-trip: ask the tick
// thread for the curve's immutable fit parameters, then, once handed
// them, do the actual disk write off the tick thread via the trainer.
func (q *Queue) runSaveLane() error {
	for {
		select {
		case <-q.done:
			return nil
		case req := <-q.laneSave:
			resp := make(chan saveExtract, 1)
			op := Op{ID: req.ID, Kind: OpSaveRequested, Handle: req.Handle, response: resp}
			select {
			case q.opsCh <- op:
			case <-q.done:
				return nil
			}

			select {
			case extract := <-resp:
				err := extract.Err
				if err == nil {
					err = q.trainer.SaveModel(req.Model, extract.Snapshot)
				}
				q.postCompleted(Completed{ID: req.ID, Kind: Save, Handle: req.Handle, Model: req.Model, Err: err})
			case <-q.done:
				return nil
			}
		}
	}
}
