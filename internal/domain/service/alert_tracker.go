package service

import (
	"context"
	"sync"

	"github.com/turtacn/fincore-risk/pkg/constants"
)

// TrackerKey identifies one alert condition of one entity. Dimension is empty for
// rules that are not scoped to a dimension.
type TrackerKey struct {
	EntityID  string
	Rule      constants.AlertRule
	Dimension constants.Dimension
}

// String renders the key as a flat field name for key-value stores.
func (k TrackerKey) String() string {
	if k.Dimension == "" {
		return k.EntityID + "|" + string(k.Rule)
	}
	return k.EntityID + "|" + string(k.Rule) + "|" + string(k.Dimension)
}

// TrackerChanges is the batch of state transitions produced by one generation pass.
type TrackerChanges struct {
	Set     map[TrackerKey]string
	Cleared []TrackerKey
}

// Empty reports whether the batch changes nothing.
func (c TrackerChanges) Empty() bool {
	return len(c.Set) == 0 && len(c.Cleared) == 0
}

// AlertTracker remembers, per (entity, rule[, dimension]), the fingerprint of the last
// active state so an unchanged condition does not raise a second alert.
// Passes over the same tracker must be serialized by the caller.
type AlertTracker interface {
	// State returns the recorded fingerprint for key, if any.
	State(ctx context.Context, key TrackerKey) (string, bool, error)

	// Commit applies a batch of changes at the end of a pass.
	Commit(ctx context.Context, changes TrackerChanges) error
}

// MemoryAlertTracker is an in-process AlertTracker.
type MemoryAlertTracker struct {
	mu    sync.RWMutex
	state map[TrackerKey]string
}

// NewMemoryAlertTracker creates an empty in-memory tracker.
func NewMemoryAlertTracker() *MemoryAlertTracker {
	return &MemoryAlertTracker{state: make(map[TrackerKey]string)}
}

// State implements AlertTracker.
func (t *MemoryAlertTracker) State(_ context.Context, key TrackerKey) (string, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fp, ok := t.state[key]
	return fp, ok, nil
}

// Commit implements AlertTracker.
func (t *MemoryAlertTracker) Commit(_ context.Context, changes TrackerChanges) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range changes.Cleared {
		delete(t.state, key)
	}
	for key, fp := range changes.Set {
		t.state[key] = fp
	}
	return nil
}

// Len returns the number of tracked conditions.
func (t *MemoryAlertTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.state)
}

var _ AlertTracker = (*MemoryAlertTracker)(nil)
