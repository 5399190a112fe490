package telemetry

import (
	"sync"
	"testing"
)

func TestStoreReadReturnsLastPublished(t *testing.T) {
	s := NewStore(nil)
	s.Publish(&Snapshot{TickCount: 1, RobotPosition: []float64{1, 2}})
	got := s.Read()
	if got.TickCount != 1 || got.RobotPosition[0] != 1 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestStoreReadNeverBlocksConcurrentPublish(t *testing.T) {
	s := NewStore(nil)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.Publish(&Snapshot{TickCount: uint64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = s.Read()
		}
	}()
	wg.Wait()
}

func TestStoreForwardsToSink(t *testing.T) {
	sink := &RecordingSink{}
	s := NewStore(sink)
	s.Publish(&Snapshot{TickCount: 7})
	if len(sink.Snapshots) != 1 || sink.Snapshots[0].TickCount != 7 {
		t.Fatalf("expected sink to record snapshot, got %+v", sink.Snapshots)
	}
}
