package telemetry

// VMSnapshot is one VM's contribution to a tick's telemetry snapshot.
type VMSnapshot struct {
	Handle   int64
	Phase    float64
	Scale    float64
	Active   bool
	Position []float64
	Velocity []float64
}

// Snapshot is the read-mostly value the tick thread publishes once per
// tick and every other thread reads through Store's atomic pointer.
type Snapshot struct {
	RobotPosition []float64
	Force         []float64
	VMs           []VMSnapshot
	TickCount     uint64
}

// Sink receives a copy of each tick's snapshot. Implementations must not
// block the tick thread; the default wiring only ever calls Sink from
// inside Store.Publish's already-non-blocking path, so a slow Sink is
// still a caller error, not something Store protects against on its own.
//
// The Snapshot passed in aliases Store's internal ring memory and is
// only guaranteed valid for the duration of the call — the tick thread
// will overwrite it snapshotRingSize ticks later. A Sink that needs to
// retain a snapshot past PublishSnapshot returning must copy it.
type Sink interface {
	PublishSnapshot(Snapshot)
}

// NopSink discards every snapshot; the zero-value default when no sink
// is injected.
type NopSink struct{}

func (NopSink) PublishSnapshot(Snapshot) {}

// RecordingSink stores every snapshot it receives, for tests. It copies
// each Snapshot's slices on the way in since the one it's handed aliases
// Store's ring buffer and would otherwise mutate underfoot.
type RecordingSink struct {
	Snapshots []Snapshot
}

func (r *RecordingSink) PublishSnapshot(s Snapshot) {
	cp := Snapshot{
		RobotPosition: append([]float64(nil), s.RobotPosition...),
		Force:         append([]float64(nil), s.Force...),
		VMs:           make([]VMSnapshot, len(s.VMs)),
		TickCount:     s.TickCount,
	}
	for i, vm := range s.VMs {
		cp.VMs[i] = VMSnapshot{
			Handle:   vm.Handle,
			Phase:    vm.Phase,
			Scale:    vm.Scale,
			Active:   vm.Active,
			Position: append([]float64(nil), vm.Position...),
			Velocity: append([]float64(nil), vm.Velocity...),
		}
	}
	r.Snapshots = append(r.Snapshots, cp)
}
