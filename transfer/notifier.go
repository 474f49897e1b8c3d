package transfer

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Notifier dispatches state snapshots to an observer. Delivery is
// at-least-once and best-effort: publishing never blocks the caller, so a
// slow observer cannot stall chunk streaming. When the buffer is full the
// snapshot is dropped and counted.
type Notifier struct {
	mu      sync.Mutex
	ch      chan Snapshot
	closed  bool
	dropped uint64
}

// NewNotifier creates a notifier with the given channel buffer size.
// A non-positive buffer gets a small default.
func NewNotifier(buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 64
	}
	return &Notifier{ch: make(chan Snapshot, buffer)}
}

// Publish delivers a snapshot to the observer without blocking. On
// backpressure the snapshot is dropped and logged.
func (n *Notifier) Publish(s Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}

	select {
	case n.ch <- s:
	default:
		n.dropped++
		logrus.WithFields(logrus.Fields{
			"function":    "Publish",
			"transfer_id": s.ID,
			"status":      s.Status.String(),
			"dropped":     n.dropped,
		}).Warn("Observer backpressure: snapshot dropped")
	}
}

// C returns the channel observers receive snapshots on. The channel is
// closed by Close.
func (n *Notifier) C() <-chan Snapshot { return n.ch }

// Dropped returns how many snapshots were discarded due to backpressure.
func (n *Notifier) Dropped() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dropped
}

// Close closes the observer channel. Publish becomes a no-op afterwards.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.ch)
}
