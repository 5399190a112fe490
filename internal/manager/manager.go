package manager

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/mechanismd/internal/automaton"
	"github.com/danielpatrickdp/mechanismd/internal/config"
	"github.com/danielpatrickdp/mechanismd/internal/curve"
	"github.com/danielpatrickdp/mechanismd/internal/mixer"
	"github.com/danielpatrickdp/mechanismd/internal/mutation"
	"github.com/danielpatrickdp/mechanismd/internal/telemetry"
)

// Options carries the per-call overrides accepted by Update, generalising
// the source's three cascading Update overloads into one operation.
// Omitted fields default to force_applied = false and to leaving every
// VM's integration direction unchanged (curves start out moving forward).
type Options struct {
	ForceApplied bool
	MoveForward  *bool
}

// Option mutates an Options value; WithX helpers exist for the fields a
// caller actually wants to override.
type Option func(*Options)

// WithForceApplied overrides the legacy active-guide gate's force_applied
// input for this tick only.
func WithForceApplied(v bool) Option {
	return func(o *Options) { o.ForceApplied = v }
}

// WithMoveForward overrides every VM's integration direction for this
// tick only; omitted, VMs keep whatever direction they already had.
func WithMoveForward(v bool) Option {
	return func(o *Options) { o.MoveForward = &v }
}

// Manager owns the ordered arena of VmEntry values and runs the tick. It
// is the only thing that ever reads or writes the arena; every other
// thread talks to it through the mutation.Queue passed at construction.
type Manager struct {
	dim int

	entries  []*VmEntry
	byHandle map[int64]*VmEntry
	nextH    int64

	scaleThreshold float64 // τ, recomputed whenever the arena is reshaped

	mx    *mixer.Mixer
	queue *mutation.Queue
	store *telemetry.Store
	log   *zap.SugaredLogger

	phaseDotTh, phaseDotPreautoTh float64
	automatonMode                 automaton.Mode
	useAutomaton                  bool

	// cfg and modelIndex resolve a freshly-inserted VM's per-model
	// use_weighted_dist/use_active_guide flags (§6) at insertion time;
	// modelIndex maps a model name to its position in cfg.Models.
	cfg        config.Config
	modelIndex map[string]int

	// scoresBuf and zeroForce are reused every tick so scoring and the
	// empty-arena return path never allocate in steady state.
	scoresBuf []mixer.VMScore
	zeroForce []float64

	// collisionDetected is a one-shot latch: it starts true (no VM
	// should ever start life in Auto), is fed to every automaton's Step
	// this tick, then cleared. Stop sets it again for exactly the next
	// tick.
	collisionDetected bool

	tickCount uint64
}

// New constructs a Manager from a validated Config. queue must not yet
// be shared with any other Manager; store may be nil, in which case a
// nop sink is used.
func New(cfg config.Config, queue *mutation.Queue, store *telemetry.Store, log *zap.SugaredLogger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if store == nil {
		store = telemetry.NewStore(telemetry.NopSink{})
	}
	automMode := automaton.ThreeState
	if cfg.TwoStateAutomaton {
		automMode = automaton.TwoState
	}
	modelIndex := make(map[string]int, len(cfg.Models))
	for i, name := range cfg.Models {
		modelIndex[name] = i
	}
	return &Manager{
		dim:               cfg.PositionDim,
		byHandle:          make(map[int64]*VmEntry),
		nextH:             1,
		scaleThreshold:    math.Inf(1),
		mx:                mixer.New(),
		queue:             queue,
		store:             store,
		log:               log,
		phaseDotTh:        cfg.PhaseDotTh,
		phaseDotPreautoTh: cfg.PhaseDotPreautoTh,
		automatonMode:     automMode,
		useAutomaton:      cfg.UseAutomaton,
		cfg:               cfg,
		modelIndex:        modelIndex,
		zeroForce:         make([]float64, cfg.PositionDim),
		collisionDetected: true,
	}, nil
}

// Dim returns the fixed task-space dimension established at construction.
func (m *Manager) Dim() int { return m.dim }

// Update runs one full tick: drain mutations, step every VM's curve and
// automaton, blend the force, publish telemetry, and return the result.
// pos and vel must both have length Dim(); dt must be > 0. A violation
// of either is a programmer error and panics rather than silently
// coercing or returning a zero value.
func (m *Manager) Update(pos, vel []float64, dt float64, mode mixer.Mode, opts ...Option) []float64 {
	if len(pos) != m.dim {
		panic(fmt.Sprintf("manager: pos has dim %d, want %d", len(pos), m.dim))
	}
	if len(vel) != m.dim {
		panic(fmt.Sprintf("manager: vel has dim %d, want %d", len(vel), m.dim))
	}
	if dt <= 0 {
		panic(fmt.Sprintf("manager: dt must be > 0, got %v", dt))
	}

	var o Options
	o.MoveForward = nil
	for _, opt := range opts {
		opt(&o)
	}

	m.applyMutations()

	force := m.zeroForce

	if len(m.entries) > 0 {
		if o.MoveForward != nil {
			for _, e := range m.entries {
				e.Curve.MoveForward(*o.MoveForward)
			}
		}

		m.applyLegacyGate(o.ForceApplied)

		for _, e := range m.entries {
			e.Curve.Update(pos, vel, dt)
		}

		if cap(m.scoresBuf) < len(m.entries) {
			m.scoresBuf = make([]mixer.VMScore, len(m.entries))
		}
		scores := m.scoresBuf[:len(m.entries)]
		for i, e := range m.entries {
			scores[i] = mixer.VMScore{
				Distance:    e.Curve.Distance(pos),
				Probability: e.Curve.Probability(pos),
				State:       e.Curve.State(e.stateBuf[:0]),
				StateDot:    e.Curve.StateDot(e.stateDotBuf[:0]),
				Stiffness:   e.Curve.Stiffness(e.stiffnessBuf[:0]),
				Damping:     e.Curve.Damping(e.dampingBuf[:0]),
			}
			e.stateBuf, e.stateDotBuf = scores[i].State, scores[i].StateDot
			e.stiffnessBuf, e.dampingBuf = scores[i].Stiffness, scores[i].Damping
		}

		weights, blended := m.mx.Tick(mode, pos, vel, scores)
		force = blended

		for i, e := range m.entries {
			phaseDot := e.Curve.PhaseDot()
			phaseDotRef := e.Curve.PhaseDotRef()
			e.Autom.Step(phaseDot, phaseDotRef, m.collisionDetected)
			e.stepCount++
			if e.stepCount%1000 == 0 {
				m.log.Debugw("automaton step counter", "handle", e.Handle, "steps", e.stepCount, "state", e.Autom.State())
			}
			active := e.Autom.GetState()
			if m.useAutomaton {
				e.Curve.SetActive(active)
				e.Active = active
			}
			e.Scale = weights[i]
			e.Phase = e.Curve.Phase()
		}
		m.collisionDetected = false
	}

	m.publishTelemetry(pos, force)
	m.tickCount++
	return force
}

// applyMutations drains every Op currently waiting on the queue and
// applies it to the arena, then recomputes the active-guide threshold if
// the arena's size changed. It also drains and logs any worker
// completions reported since the last tick, per spec.md's "all
// recoverable errors are surfaced on worker completion".
func (m *Manager) applyMutations() {
	for _, c := range m.queue.DrainCompleted() {
		if c.Err != nil {
			m.log.Warnw("worker completion reported failure", "id", c.ID, "kind", c.Kind, "handle", c.Handle, "model", c.Model, "err", c.Err)
		}
	}

	ops := m.queue.Drain()
	if len(ops) == 0 {
		return
	}
	reshaped := false
	for _, op := range ops {
		switch op.Kind {
		case mutation.OpInsertReady:
			reshaped = m.applyInsert(op) || reshaped
		case mutation.OpDeleteRequested:
			reshaped = m.applyDelete(op.Handle) || reshaped
		case mutation.OpSaveRequested:
			m.applySave(op)
		}
	}
	if reshaped {
		m.recomputeThreshold()
	}
}

func (m *Manager) applyInsert(op mutation.Op) (reshaped bool) {
	if op.Err != nil {
		m.log.Warnw("model-load failure, no VM added", "op_id", op.ID, "model", op.Model, "err", op.Err)
		return false
	}
	if op.Source == mutation.Reload {
		e, ok := m.byHandle[op.Handle]
		if !ok {
			m.log.Warnw("reload targeted unknown handle, ignored", "handle", op.Handle)
			return false
		}
		e.Curve = op.Curve
		e.Model = op.Model
		e.Autom.Reset()
		m.applyModelOptions(e, op.Model)
		return false
	}
	e := &VmEntry{
		Handle:       m.nextH,
		Curve:        op.Curve,
		Autom:        automaton.New(m.automatonMode, m.phaseDotTh, m.phaseDotPreautoTh),
		Model:        op.Model,
		stateBuf:     make([]float64, 0, m.dim),
		stateDotBuf:  make([]float64, 0, m.dim),
		stiffnessBuf: make([]float64, 0, m.dim),
		dampingBuf:   make([]float64, 0, m.dim),
	}
	m.applyModelOptions(e, op.Model)
	m.nextH++
	m.entries = append(m.entries, e)
	m.byHandle[e.Handle] = e
	return true
}

// applyModelOptions sets e's per-VM use_weighted_dist/use_active_guide
// flags (§6) by looking model up in cfg.Models; a model with no entry in
// cfg.Models (or the empty string, for InsertEmpty/InsertFromMatrix VMs)
// leaves both flags false, matching WeightedDistFor/ActiveGuideFor's
// out-of-range default.
func (m *Manager) applyModelOptions(e *VmEntry, model string) {
	idx, ok := m.modelIndex[model]
	if !ok {
		idx = -1
	}
	e.UseWeightedDist = m.cfg.WeightedDistFor(idx)
	e.UseActiveGuide = m.cfg.ActiveGuideFor(idx)
	e.Curve.SetWeightedDist(e.UseWeightedDist)
}

// applyDelete removes handle from the arena immediately: no deferred
// compaction, so byHandle and entries agree on membership the instant
// this returns, one tick faster than spec.md's "tombstone until the
// next drain compacts it" would allow, with the same net observable
// effect (handle is gone, everyone else keeps their slot).
func (m *Manager) applyDelete(handle int64) (reshaped bool) {
	e, ok := m.byHandle[handle]
	if !ok {
		return false
	}
	delete(m.byHandle, handle)
	for i, entry := range m.entries {
		if entry == e {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			break
		}
	}
	return true
}

func (m *Manager) applySave(op mutation.Op) {
	e, ok := m.byHandle[op.Handle]
	if !ok {
		op.Fulfill(curve.Params{}, fmt.Errorf("save: handle %d not found", op.Handle))
		return
	}
	saveable, ok := e.Curve.(curve.Saveable)
	if !ok {
		op.Fulfill(curve.Params{}, fmt.Errorf("save: handle %d's curve is not saveable", op.Handle))
		return
	}
	op.Fulfill(saveable.Params(), nil)
}

// recomputeThreshold sets τ = 1/N + 0.2 for the legacy active-guide gate;
// with no VMs the gate can never fire, so τ is +Inf.
func (m *Manager) recomputeThreshold() {
	n := len(m.entries)
	if n == 0 {
		m.scaleThreshold = math.Inf(1)
		return
	}
	m.scaleThreshold = 1.0/float64(n) + 0.2
}

// applyLegacyGate implements §4.4 step 3. Its verdict is used only when
// the automaton is not the authoritative path: it then drives both
// curve.SetActive and VmEntry.Active (telemetry and OnVM). With the
// automaton selected the verdict is discarded.
func (m *Manager) applyLegacyGate(forceApplied bool) {
	for _, e := range m.entries {
		active := !forceApplied && e.Scale > m.scaleThreshold && e.UseActiveGuide
		if !m.useAutomaton {
			e.Curve.SetActive(active)
			e.Active = active
		}
	}
}

func (m *Manager) publishTelemetry(pos, force []float64) {
	snap := m.store.Acquire(m.dim, len(m.entries))
	copy(snap.RobotPosition, pos)
	copy(snap.Force, force)
	for i, e := range m.entries {
		snap.VMs[i].Handle = e.Handle
		snap.VMs[i].Phase = e.Phase
		snap.VMs[i].Scale = e.Scale
		snap.VMs[i].Active = e.Active
		snap.VMs[i].Position = e.Curve.State(snap.VMs[i].Position[:0])
		snap.VMs[i].Velocity = e.Curve.StateDot(snap.VMs[i].Velocity[:0])
	}
	snap.TickCount = m.tickCount
	m.store.Publish(snap)
}

// Stop sets the collision latch; combined with the automaton, any VM
// currently Auto returns to Manual at the very next tick.
func (m *Manager) Stop() {
	m.collisionDetected = true
}

// The accessors below read the live arena directly and are therefore
// only safe to call from the tick thread itself (or under external
// synchronization, as in this package's own tests). Every other thread
// must go through facade.Interface, which reads the telemetry snapshot
// instead of touching the arena, per §5's "other threads never touch it
// directly".

// GetVMPosition returns the last-updated position of handle's curve, or
// nil if handle is not (or no longer) valid.
func (m *Manager) GetVMPosition(handle int64) []float64 {
	e, ok := m.byHandle[handle]
	if !ok {
		return nil
	}
	return e.Curve.State(nil)
}

// GetVMVelocity returns the last-updated tangent velocity of handle's
// curve, or nil if handle is not valid.
func (m *Manager) GetVMVelocity(handle int64) []float64 {
	e, ok := m.byHandle[handle]
	if !ok {
		return nil
	}
	return e.Curve.StateDot(nil)
}

// GetPhase returns handle's last-computed phase, or 0 if handle is not valid.
func (m *Manager) GetPhase(handle int64) float64 {
	e, ok := m.byHandle[handle]
	if !ok {
		return 0
	}
	return e.Phase
}

// GetScale returns handle's last-computed blend weight, or 0 if handle
// is not valid.
func (m *Manager) GetScale(handle int64) float64 {
	e, ok := m.byHandle[handle]
	if !ok {
		return 0
	}
	return e.Scale
}

// GetVMCount returns the number of VMs currently tracked.
func (m *Manager) GetVMCount() int { return len(m.entries) }

// OnVM reports whether any VM is currently active.
func (m *Manager) OnVM() bool {
	for _, e := range m.entries {
		if e.Active {
			return true
		}
	}
	return false
}
