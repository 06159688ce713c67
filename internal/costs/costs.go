// Package costs maintains the per-operation gas cost table used by the
// estimation engine.
package costs

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fhelabs/fhegas/internal/events"
	"github.com/fhelabs/fhegas/internal/fhe"
	"github.com/fhelabs/fhegas/internal/model"
)

// Registry maps operation names to their cost parameters. It is seeded with
// the embedded defaults and safe for concurrent use; concurrent SetCost
// calls for the same name resolve last-writer-wins since every update is a
// whole-record replacement.
type Registry struct {
	mu      sync.RWMutex
	table   map[string]model.OperationCost
	emitter events.Emitter
}

// NewRegistry returns a registry pre-populated with DefaultCosts. A nil
// emitter disables change notifications.
func NewRegistry(emitter events.Emitter) *Registry {
	if emitter == nil {
		emitter = events.Nop{}
	}
	r := &Registry{
		table:   make(map[string]model.OperationCost),
		emitter: emitter,
	}
	for _, c := range DefaultCosts() {
		r.table[c.Name] = c
	}
	return r
}

// SetEmitter replaces the registry's change notifier. Used when a registry
// is seeded from persisted state before notifications should start flowing.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.Nop{}
	}
	r.mu.Lock()
	r.emitter = emitter
	r.mu.Unlock()
}

// DefaultCosts returns the embedded cost table covering the known FHE
// primitive set.
func DefaultCosts() []model.OperationCost {
	return []model.OperationCost{
		{Name: fhe.OpAdd, BaseCost: 5000, PerByteCost: 10},
		{Name: fhe.OpSub, BaseCost: 5000, PerByteCost: 10},
		{Name: fhe.OpMul, BaseCost: 15000, PerByteCost: 20},
		{Name: fhe.OpDiv, BaseCost: 20000, PerByteCost: 25},
		{Name: fhe.OpGt, BaseCost: 8000, PerByteCost: 15},
		{Name: fhe.OpLt, BaseCost: 8000, PerByteCost: 15},
		{Name: fhe.OpEq, BaseCost: 7000, PerByteCost: 12},
		{Name: fhe.OpNe, BaseCost: 7000, PerByteCost: 12},
		{Name: fhe.OpAnd, BaseCost: 6000, PerByteCost: 10},
		{Name: fhe.OpOr, BaseCost: 6000, PerByteCost: 10},
		{Name: fhe.OpNot, BaseCost: 4000, PerByteCost: 8},
		{Name: fhe.OpCast, BaseCost: 3000, PerByteCost: 5},
	}
}

// SetCost replaces (or creates) the entry for name. Negative values are
// rejected; there is no upper bound on magnitude. Emits a cost-updated
// notification on success.
func (r *Registry) SetCost(name string, baseCost, perByteCost int64) error {
	if name == "" {
		return fmt.Errorf("%w: operation name is empty", fhe.ErrInvalidParameter)
	}
	if baseCost < 0 || perByteCost < 0 {
		return fmt.Errorf("%w: negative cost for %q (base=%d perByte=%d)",
			fhe.ErrInvalidParameter, name, baseCost, perByteCost)
	}

	cost := model.OperationCost{
		Name:        name,
		BaseCost:    uint64(baseCost),
		PerByteCost: uint64(perByteCost),
	}

	r.mu.Lock()
	r.table[name] = cost
	emitter := r.emitter
	r.mu.Unlock()

	emitter.CostUpdated(name, cost.BaseCost, cost.PerByteCost)
	return nil
}

// GetCost returns the stored entry for name. Missing entries and entries
// with a zero base cost both fail with ErrUnknownOperation.
func (r *Registry) GetCost(name string) (model.OperationCost, error) {
	r.mu.RLock()
	cost, ok := r.table[name]
	r.mu.RUnlock()

	if !ok || cost.BaseCost == 0 {
		return model.OperationCost{}, fmt.Errorf("%w: %q", fhe.ErrUnknownOperation, name)
	}
	return cost, nil
}

// Snapshot returns a copy of the live table sorted by operation name.
// Zero-base entries are included so callers can see tombstoned operations.
func (r *Registry) Snapshot() []model.OperationCost {
	r.mu.RLock()
	out := make([]model.OperationCost, 0, len(r.table))
	for _, c := range r.table {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Apply replaces the entries named in table, leaving all others untouched.
// It stops at the first invalid entry.
func (r *Registry) Apply(table []model.OperationCost) error {
	for _, c := range table {
		if err := r.SetCost(c.Name, int64(c.BaseCost), int64(c.PerByteCost)); err != nil {
			return err
		}
	}
	return nil
}
