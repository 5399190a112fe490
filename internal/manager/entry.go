package manager

import (
	"github.com/danielpatrickdp/mechanismd/internal/automaton"
	"github.com/danielpatrickdp/mechanismd/internal/curve"
)

// VmEntry is one tracked virtual mechanism. It is created only inside
// the tick's mutation-drain phase and destroyed likewise; nothing
// outside the tick thread ever holds a pointer to one.
type VmEntry struct {
	Handle int64
	Curve  curve.Curve
	Autom  *automaton.Automaton

	UseWeightedDist bool
	UseActiveGuide  bool

	// Model names the saved model this entry was most recently loaded
	// (or reloaded) from; empty for InsertEmpty/InsertFromMatrix
	// entries. Saving an entry does not change it.
	Model string

	// Scale, Phase, and Active are the entry's derived scalars from the
	// most recently completed tick; copy-out accessors read these.
	Scale  float64
	Phase  float64
	Active bool

	// stepCount counts this entry's automaton Step calls, for the
	// periodic Debug-level counter the manager logs every 1000 steps
	// (see Manager.Update) — the Go replacement for the original's
	// loopCnt%1000==0 console print.
	stepCount uint64

	// stateBuf/stateDotBuf/stiffnessBuf/dampingBuf are per-entry scratch
	// buffers the tick thread hands to Curve.State/StateDot/Stiffness/
	// Damping each tick, sized once at insertion (dim never changes for
	// an entry's lifetime) so these four calls never allocate in steady
	// state.
	stateBuf     []float64
	stateDotBuf  []float64
	stiffnessBuf []float64
	dampingBuf   []float64
}
