package transfer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidTransition indicates a status transition that the state
	// machine does not permit.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotSending indicates a chunk progress update while the transfer is
	// not in the Sending state.
	ErrNotSending = errors.New("transfer is not sending")
)

// State tracks one in-flight transfer. It is owned exclusively by the
// Registry; other components reach it through registry accessors and observe
// it through value snapshots. All methods are safe for concurrent use.
type State struct {
	mu sync.Mutex

	id          string
	peer        string
	filename    string
	totalSize   uint64
	totalChunks int

	bytesSent  uint64
	chunksSent int
	startTime  time.Time
	status     Status
	attempts   int
	lastError  string
	terminalAt time.Time

	tp         TimeProvider
	cancel     chan struct{}
	cancelOnce sync.Once
}

// NewState creates the tracking state for a registered transfer. The initial
// status is Connecting with zero connection attempts. A nil TimeProvider
// selects the real clock.
func NewState(req Request, peer string, tp TimeProvider) *State {
	if tp == nil {
		tp = DefaultTimeProvider{}
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewState",
		"transfer_id": req.ID,
		"peer":        peer,
		"file_name":   req.Filename,
		"file_size":   req.Size,
		"chunk_count": req.ChunkCount,
	}).Info("Creating transfer state")

	return &State{
		id:          req.ID,
		peer:        peer,
		filename:    req.Filename,
		totalSize:   req.Size,
		totalChunks: req.ChunkCount,
		startTime:   tp.Now(),
		status:      StatusConnecting,
		tp:          tp,
		cancel:      make(chan struct{}),
	}
}

// ID returns the transfer identifier.
func (s *State) ID() string { return s.id }

// Status returns the current status.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Advance moves the transfer to the next status. Transitions are strictly
// forward; any non-terminal status may move to Failed or Cancelled; terminal
// statuses reject all further transitions with ErrInvalidTransition.
func (s *State) Advance(next Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(next, "")
}

// Fail moves the transfer to Failed recording the human-readable reason.
func (s *State) Fail(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(StatusFailed, reason)
}

// advanceLocked validates and applies a transition. Caller holds s.mu.
func (s *State) advanceLocked(next Status, reason string) error {
	if s.status.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, s.status)
	}
	if !next.IsTerminal() && next <= s.status {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.status, next)
	}

	prev := s.status
	s.status = next
	if next == StatusFailed && reason != "" {
		s.lastError = reason
	}
	if next.IsTerminal() {
		s.terminalAt = s.tp.Now()
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Advance",
		"transfer_id": s.id,
		"peer":        s.peer,
		"from":        prev.String(),
		"to":          next.String(),
		"last_error":  s.lastError,
	}).Info("Transfer status advanced")

	return nil
}

// BeginAttempt records a new connection attempt, re-entering Connecting.
// It is the retry controller's sanctioned way back into the state machine
// and is rejected once the transfer is terminal.
func (s *State) BeginAttempt() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, s.status)
	}

	s.attempts++
	s.status = StatusConnecting
	// A fresh attempt resends from chunk zero; stale counters would read
	// re-sent chunks as additional progress.
	s.bytesSent = 0
	s.chunksSent = 0

	logrus.WithFields(logrus.Fields{
		"function":    "BeginAttempt",
		"transfer_id": s.id,
		"peer":        s.peer,
		"attempt":     s.attempts,
	}).Debug("Connection attempt started")

	return nil
}

// RecordAttemptError stores the attempt's failure message without changing
// status, so a retried transfer reports its most recent error.
func (s *State) RecordAttemptError(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.IsTerminal() {
		s.lastError = reason
	}
}

// RecordChunkSent records that the chunk at the given index was sent with n
// payload bytes. Only legal while the transfer is Sending. Counters are
// monotonic: they never decrease and never exceed the transfer totals.
func (s *State) RecordChunkSent(index int, n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusSending {
		return fmt.Errorf("%w: status is %s", ErrNotSending, s.status)
	}

	s.bytesSent += n
	if s.bytesSent > s.totalSize {
		s.bytesSent = s.totalSize
	}
	if s.chunksSent < s.totalChunks {
		s.chunksSent++
	}

	logrus.WithFields(logrus.Fields{
		"function":    "RecordChunkSent",
		"transfer_id": s.id,
		"chunk_index": index,
		"chunk_bytes": n,
		"bytes_sent":  s.bytesSent,
		"total_size":  s.totalSize,
	}).Debug("Chunk progress recorded")

	return nil
}

// requestCancel flips the cancellation flag. Idempotent.
func (s *State) requestCancel() {
	s.cancelOnce.Do(func() { close(s.cancel) })
}

// CancelRequested reports whether cancellation has been requested. The flag
// is observed cooperatively: at chunk boundaries and before retry attempts.
func (s *State) CancelRequested() bool {
	select {
	case <-s.cancel:
		return true
	default:
		return false
	}
}

// CancelChan returns a channel closed when cancellation is requested.
func (s *State) CancelChan() <-chan struct{} { return s.cancel }

// Snapshot returns a value copy of the state suitable for handing to
// observers. The copy cannot drift the registry's state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		ID:                 s.id,
		Peer:               s.peer,
		Filename:           s.filename,
		TotalSize:          s.totalSize,
		BytesSent:          s.bytesSent,
		ChunksSent:         s.chunksSent,
		TotalChunks:        s.totalChunks,
		StartTime:          s.startTime,
		Status:             s.status,
		ConnectionAttempts: s.attempts,
		LastError:          s.lastError,
		TerminalAt:         s.terminalAt,
		CapturedAt:         s.tp.Now(),
	}
}
