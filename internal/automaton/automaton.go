// Package automaton implements the per-VM activation state machine that
// decides whether a virtual mechanism should drive the robot
// autonomously this tick.
package automaton

// State is one of the three (or, in TwoState mode, two reachable) phases
// of a VM's activation lifecycle.
type State string

const (
	Manual  State = "manual"
	PreAuto State = "preauto"
	Auto    State = "auto"
)

// Mode selects between the three-state pipeline (Manual -> PreAuto ->
// Auto -> Manual) and the two-state shortcut (Manual <-> Auto). The
// original C++ source guarded the two-state path behind a dead
// `if(true) ... else` branch — always compiled, never reached. This
// module makes both paths real and selectable per §9's open question.
type Mode string

const (
	ThreeState Mode = "three_state"
	TwoState   Mode = "two_state"
)

// Automaton is a pure state machine: Step is a function of only its
// previous state and the three scalar inputs, with no I/O of its own.
type Automaton struct {
	mode              Mode
	phaseDotTh        float64
	phaseDotPreautoTh float64

	state State
}

// New constructs an Automaton starting in Manual, per §4.3. phaseDotTh
// must be > 0 and phaseDotPreautoTh must exceed it; New panics on a
// caller error here rather than returning it because these are
// construction-time invariants checked once by config validation, not a
// runtime condition (see internal/config).
func New(mode Mode, phaseDotTh, phaseDotPreautoTh float64) *Automaton {
	if phaseDotTh <= 0 {
		panic("automaton: phaseDotTh must be > 0")
	}
	if phaseDotPreautoTh <= phaseDotTh {
		panic("automaton: phaseDotPreautoTh must exceed phaseDotTh")
	}
	return &Automaton{
		mode:              mode,
		phaseDotTh:        phaseDotTh,
		phaseDotPreautoTh: phaseDotPreautoTh,
		state:             Manual,
	}
}

// State returns the automaton's current state.
func (a *Automaton) State() State { return a.state }

// GetState returns true iff the automaton is in Auto, the signal the
// manager uses to drive Curve.SetActive.
func (a *Automaton) GetState() bool { return a.state == Auto }

// Step advances the automaton by one tick given the freshly-read
// phaseDot, the curve's nominal phaseDotRef, and the manager's collision
// latch.
func (a *Automaton) Step(phaseDot, phaseDotRef float64, collisionDetected bool) State {
	switch a.mode {
	case TwoState:
		if phaseDot <= phaseDotRef+a.phaseDotTh && phaseDot >= phaseDotRef-a.phaseDotTh {
			a.state = Auto
		} else {
			a.state = Manual
		}
	default: // ThreeState
		switch a.state {
		case Manual:
			if phaseDot >= a.phaseDotPreautoTh {
				a.state = PreAuto
			}
		case PreAuto:
			if phaseDot <= phaseDotRef+a.phaseDotTh {
				a.state = Auto
			}
		case Auto:
			if collisionDetected {
				a.state = Manual
			}
		}
	}
	return a.state
}

// Reset forces the automaton back to Manual, used by the manager when a
// Reload replaces a VM's curve. The collision latch does not call it; it
// reaches Manual through Step.
func (a *Automaton) Reset() {
	a.state = Manual
}
