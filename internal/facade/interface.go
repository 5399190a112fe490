// Package facade is the thin synchronous/asynchronous surface external
// callers use instead of touching internal/manager directly: the
// synchronous half runs on the tick thread, the asynchronous half posts
// to the mutation queue and returns immediately.
package facade

import (
	"go.uber.org/zap"

	"github.com/danielpatrickdp/mechanismd/internal/config"
	"github.com/danielpatrickdp/mechanismd/internal/manager"
	"github.com/danielpatrickdp/mechanismd/internal/mixer"
	"github.com/danielpatrickdp/mechanismd/internal/mutation"
	"github.com/danielpatrickdp/mechanismd/internal/telemetry"
)

// Interface owns no state of its own beyond its three collaborators: it
// delegates the tick to the Manager and every read-only accessor to the
// telemetry Store, never to the Manager's live arena.
type Interface struct {
	mgr   *manager.Manager
	queue *mutation.Queue
	store *telemetry.Store
}

// New wires a Manager, its MutationQueue (backed by trainer), and a
// telemetry Store (backed by sink) into one Interface, mirroring
// cmd/controller/main.go's "open store, construct dependents, serve"
// order.
func New(cfg config.Config, trainer mutation.Trainer, sink telemetry.Sink, log *zap.SugaredLogger) (*Interface, error) {
	queue := mutation.New(trainer, log)
	store := telemetry.NewStore(sink)
	mgr, err := manager.New(cfg, queue, store, log)
	if err != nil {
		queue.Stop()
		return nil, err
	}
	return &Interface{mgr: mgr, queue: queue, store: store}, nil
}

// Close stops the mutation queue's lane workers. Callers must wait for
// any in-flight worker job to finish on their own; there is no
// cancellation of jobs already accepted by a lane.
func (f *Interface) Close() error {
	f.queue.Stop()
	return f.queue.Wait()
}

// Update runs one tick. See manager.Manager.Update for the full contract.
func (f *Interface) Update(pos, vel []float64, dt float64, mode mixer.Mode, opts ...manager.Option) []float64 {
	return f.mgr.Update(pos, vel, dt, mode, opts...)
}

// Stop sets the collision latch; any VM currently Auto returns to
// Manual at the next tick.
func (f *Interface) Stop() {
	f.mgr.Stop()
}

// GetVMPosition returns handle's last-published position, or nil if
// handle does not appear in the most recent snapshot.
func (f *Interface) GetVMPosition(handle int64) []float64 {
	if vm, ok := f.findVM(handle); ok {
		return vm.Position
	}
	return nil
}

// GetVMVelocity returns handle's last-published tangent velocity, or
// nil if handle does not appear in the most recent snapshot.
func (f *Interface) GetVMVelocity(handle int64) []float64 {
	if vm, ok := f.findVM(handle); ok {
		return vm.Velocity
	}
	return nil
}

// GetPhase returns handle's last-published phase, or 0 if handle does
// not appear in the most recent snapshot.
func (f *Interface) GetPhase(handle int64) float64 {
	if vm, ok := f.findVM(handle); ok {
		return vm.Phase
	}
	return 0
}

// GetScale returns handle's last-published blend weight, or 0 if handle
// does not appear in the most recent snapshot.
func (f *Interface) GetScale(handle int64) float64 {
	if vm, ok := f.findVM(handle); ok {
		return vm.Scale
	}
	return 0
}

// GetVMCount returns the VM count as of the most recent snapshot.
func (f *Interface) GetVMCount() int {
	return len(f.store.Read().VMs)
}

// OnVM reports whether any VM was Auto as of the most recent snapshot.
func (f *Interface) OnVM() bool {
	for _, vm := range f.store.Read().VMs {
		if vm.Active {
			return true
		}
	}
	return false
}

func (f *Interface) findVM(handle int64) (telemetry.VMSnapshot, bool) {
	for _, vm := range f.store.Read().VMs {
		if vm.Handle == handle {
			return vm, true
		}
	}
	return telemetry.VMSnapshot{}, false
}

// InsertVM appends a fresh default-parameter VM. Returns immediately;
// the VM becomes visible in accessors once the insert lane finishes and
// the tick thread applies it.
func (f *Interface) InsertVM(dim int) (string, error) {
	return f.queue.SubmitInsertEmpty(dim)
}

// InsertVMFromMatrix fits and inserts a VM from a demonstration matrix.
func (f *Interface) InsertVMFromMatrix(matrix [][]float64, phaseDotRef float64) (string, error) {
	return f.queue.SubmitInsertFromMatrix(matrix, phaseDotRef)
}

// InsertVMFromModel loads and inserts a VM from a saved model.
func (f *Interface) InsertVMFromModel(model string) (string, error) {
	return f.queue.SubmitInsertFromModel(model)
}

// ReloadVM replaces handle's curve in place with a fresh load of model.
func (f *Interface) ReloadVM(handle int64, model string) (string, error) {
	return f.queue.SubmitReload(handle, model)
}

// DeleteVM removes handle; a no-op if handle is already gone.
func (f *Interface) DeleteVM(handle int64) (string, error) {
	return f.queue.SubmitDelete(handle)
}

// SaveVM persists handle's curve under name.
func (f *Interface) SaveVM(handle int64, name string) (string, error) {
	return f.queue.SubmitSave(handle, name)
}
