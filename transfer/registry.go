package transfer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// ErrCapacityExceeded indicates the concurrent-transfer limit is reached.
	ErrCapacityExceeded = errors.New("too many concurrent transfers")

	// ErrTransferNotFound indicates no transfer is registered under the ID.
	ErrTransferNotFound = errors.New("transfer not found")

	// ErrDuplicateTransfer indicates a transfer ID is already registered.
	ErrDuplicateTransfer = errors.New("transfer already registered")
)

// Registry is the concurrent map from transfer ID to transfer state. It
// enforces the maximum concurrent-transfer count and is the only component
// that hands out access to live state. The registry map is guarded by its
// own lock; each State carries its own mutex, so mutating one transfer never
// serializes unrelated transfers.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*State
	maxActive int
	tp        TimeProvider
}

// NewRegistry creates a registry admitting at most maxActive concurrently
// active (non-terminal) transfers. A nil TimeProvider selects the real clock.
func NewRegistry(maxActive int, tp TimeProvider) *Registry {
	if tp == nil {
		tp = DefaultTimeProvider{}
	}
	return &Registry{
		entries:   make(map[string]*State),
		maxActive: maxActive,
		tp:        tp,
	}
}

// Register adds a transfer state. It fails with ErrCapacityExceeded when the
// active (non-terminal) count has reached the configured limit; a slot freed
// by a terminal transition is available immediately.
func (r *Registry) Register(s *State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[s.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTransfer, s.ID())
	}

	active := 0
	for _, st := range r.entries {
		if !st.Status().IsTerminal() {
			active++
		}
	}
	if active >= r.maxActive {
		logrus.WithFields(logrus.Fields{
			"function":    "Register",
			"transfer_id": s.ID(),
			"active":      active,
			"max_active":  r.maxActive,
		}).Warn("Registration rejected: capacity exceeded")
		return fmt.Errorf("%w: %d/%d active", ErrCapacityExceeded, active, r.maxActive)
	}

	r.entries[s.ID()] = s

	logrus.WithFields(logrus.Fields{
		"function":    "Register",
		"transfer_id": s.ID(),
		"active":      active + 1,
		"max_active":  r.maxActive,
	}).Info("Transfer registered")

	return nil
}

// GetSnapshot returns a value copy of the transfer's state. It never returns
// a live handle.
func (r *Registry) GetSnapshot(id string) (Snapshot, bool) {
	r.mu.RLock()
	s, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Mutate applies f to the transfer's state. It is the only sanctioned way to
// change registered state; mutation happens under the entry's own lock via
// the State methods f calls.
func (r *Registry) Mutate(id string, f func(*State) error) error {
	r.mu.RLock()
	s, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTransferNotFound, id)
	}
	return f(s)
}

// ListActive returns snapshots of all non-terminal transfers.
func (r *Registry) ListActive() []Snapshot {
	r.mu.RLock()
	states := make([]*State, 0, len(r.entries))
	for _, s := range r.entries {
		states = append(states, s)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(states))
	for _, s := range states {
		snap := s.Snapshot()
		if !snap.Status.IsTerminal() {
			out = append(out, snap)
		}
	}
	return out
}

// ListAll returns snapshots of every registered transfer, terminal included.
func (r *Registry) ListAll() []Snapshot {
	r.mu.RLock()
	states := make([]*State, 0, len(r.entries))
	for _, s := range r.entries {
		states = append(states, s)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(states))
	for _, s := range states {
		out = append(out, s.Snapshot())
	}
	return out
}

// ActiveCount returns the number of non-terminal transfers.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := 0
	for _, s := range r.entries {
		if !s.Status().IsTerminal() {
			active++
		}
	}
	return active
}

// Cancel flips the transfer's cancellation flag and advances its status to
// Cancelled if not already terminal. The flag is observed cooperatively by
// the retry controller and the chunk streaming loop.
func (r *Registry) Cancel(id string) error {
	r.mu.RLock()
	s, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTransferNotFound, id)
	}

	s.requestCancel()
	if err := s.Advance(StatusCancelled); err != nil {
		// Already terminal: cancellation after completion is a no-op.
		logrus.WithFields(logrus.Fields{
			"function":    "Cancel",
			"transfer_id": id,
			"status":      s.Status().String(),
		}).Debug("Cancel requested on terminal transfer")
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Cancel",
		"transfer_id": id,
	}).Info("Transfer cancelled")

	return nil
}

// CancelChan returns the transfer's cancellation channel, closed when
// cancellation is requested.
func (r *Registry) CancelChan(id string) (<-chan struct{}, error) {
	r.mu.RLock()
	s, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransferNotFound, id)
	}
	return s.CancelChan(), nil
}

// Remove deletes the transfer from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}
