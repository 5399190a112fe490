package telemetry

import "sync/atomic"

// snapshotRingSize is the number of preallocated Snapshot slots the tick
// thread cycles through. Two is enough for a single writer: one slot can
// be in flight to readers (via ptr) while the other is being filled in
// place for the next tick, so a reader never observes the writer's
// in-progress mutation of the slot it just read.
const snapshotRingSize = 2

// Store holds the single most recent Snapshot behind a lock-free atomic
// pointer swap: exactly one writer (the tick thread) and many readers,
// none of which can ever block the writer or each other. §5 describes
// this as "readers ... protected by a try-lock" that fall back to the
// last successfully-read value on contention; an atomic.Pointer swap
// gives the same observable behavior (a reader always gets some
// complete, previously-published snapshot, never a torn one) without the
// tick thread ever calling Lock at all, which is a stronger guarantee
// than TryLock's "skip this tick if contended" — and no pack dependency
// improves on the standard library's atomic.Pointer for this job.
//
// The tick thread must not allocate in steady state (§5), so Store backs
// ptr with a fixed ring of preallocated Snapshots (see Acquire) rather
// than handing Publish a fresh one every call.
type Store struct {
	ptr  atomic.Pointer[Snapshot]
	sink Sink
	ring [snapshotRingSize]*Snapshot
	next int
}

// NewStore returns a Store publishing to sink. A nil sink is replaced
// with NopSink.
func NewStore(sink Sink) *Store {
	if sink == nil {
		sink = NopSink{}
	}
	s := &Store{sink: sink}
	for i := range s.ring {
		s.ring[i] = &Snapshot{}
	}
	s.ptr.Store(s.ring[0])
	return s
}

// Acquire returns the ring slot for the tick thread to fill in place,
// growing its RobotPosition/Force/VMs buffers (and each VM's
// Position/Velocity) to fit vmCount VMs at posDim dimensions if they
// aren't already big enough. The caller fills the returned Snapshot's
// fields and passes it to Publish; it must not touch a Snapshot handed
// back by a previous Acquire call once Publish has been called again.
func (s *Store) Acquire(posDim, vmCount int) *Snapshot {
	s.next = (s.next + 1) % snapshotRingSize
	snap := s.ring[s.next]
	snap.RobotPosition = growFloat(snap.RobotPosition, posDim)
	snap.Force = growFloat(snap.Force, posDim)
	snap.VMs = growVMSnapshots(snap.VMs, vmCount, posDim)
	return snap
}

// Publish is called once per tick from the tick thread with a Snapshot
// obtained from Acquire and filled in place. It never blocks.
func (s *Store) Publish(snap *Snapshot) {
	s.ptr.Store(snap)
	s.sink.PublishSnapshot(*snap)
}

// Read returns the last published snapshot. Never blocks.
func (s *Store) Read() Snapshot {
	return *s.ptr.Load()
}

func growFloat(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}

// growVMSnapshots resizes buf to n elements, preserving and growing each
// retained element's Position/Velocity buffers to dim so a growing VM
// count reuses as much of the ring slot's prior allocations as possible.
func growVMSnapshots(buf []VMSnapshot, n, dim int) []VMSnapshot {
	if cap(buf) < n {
		grown := make([]VMSnapshot, n)
		copy(grown, buf)
		buf = grown
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i].Position = growFloat(buf[i].Position, dim)
		buf[i].Velocity = growFloat(buf[i].Velocity, dim)
	}
	return buf
}
