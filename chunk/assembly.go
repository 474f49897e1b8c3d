package chunk

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrIndexOutOfRange indicates a chunk index outside the expected range.
var ErrIndexOutOfRange = errors.New("chunk index out of range")

// IncompleteError reports a reassembly attempt with chunks still missing.
// Missing lists the absent indices in ascending order.
type IncompleteError struct {
	TransferID string
	Missing    []int
}

// Error implements the error interface.
func (e *IncompleteError) Error() string {
	return fmt.Sprintf("transfer %s incomplete: %d chunks missing %v", e.TransferID, len(e.Missing), e.Missing)
}

// Assembly accumulates out-of-order chunks for one incoming transfer and
// reassembles them into the original byte stream. Safe for concurrent use.
type Assembly struct {
	mu            sync.Mutex
	transferID    string
	expectedCount int
	expectedSize  uint64
	received      map[int][]byte
	bytesReceived uint64
}

// NewAssembly creates an assembly expecting expectedCount chunks totalling
// expectedSize bytes.
func NewAssembly(transferID string, expectedCount int, expectedSize uint64) *Assembly {
	return &Assembly{
		transferID:    transferID,
		expectedCount: expectedCount,
		expectedSize:  expectedSize,
		received:      make(map[int][]byte, expectedCount),
	}
}

// Add records a received chunk. Chunks may arrive in any order. A duplicate
// index replaces the previous payload and the byte count is adjusted, so a
// retransmitted chunk is never double-counted.
func (a *Assembly) Add(c Chunk) error {
	if err := Validate(c, a.expectedCount); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if prev, ok := a.received[c.Index]; ok {
		a.bytesReceived -= uint64(len(prev))
	}

	data := make([]byte, len(c.Data))
	copy(data, c.Data)
	a.received[c.Index] = data
	a.bytesReceived += uint64(len(data))

	logrus.WithFields(logrus.Fields{
		"function":    "Add",
		"transfer_id": a.transferID,
		"chunk_index": c.Index,
		"chunk_count": a.expectedCount,
		"chunk_bytes": len(data),
		"received":    len(a.received),
	}).Debug("Chunk recorded")

	return nil
}

// Complete reports whether every expected chunk has been received.
func (a *Assembly) Complete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.received) == a.expectedCount
}

// BytesReceived returns the cumulative payload bytes received so far.
func (a *Assembly) BytesReceived() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bytesReceived
}

// ChunksReceived returns the number of distinct chunk indices received.
func (a *Assembly) ChunksReceived() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.received)
}

// Assemble concatenates the received chunks in index order and returns the
// original byte stream. If any index in [0, expectedCount) is absent it
// returns an *IncompleteError listing exactly the missing indices; it never
// returns partial bytes.
func (a *Assembly) Assemble() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.received) != a.expectedCount {
		missing := make([]int, 0, a.expectedCount-len(a.received))
		for i := 0; i < a.expectedCount; i++ {
			if _, ok := a.received[i]; !ok {
				missing = append(missing, i)
			}
		}
		sort.Ints(missing)
		return nil, &IncompleteError{TransferID: a.transferID, Missing: missing}
	}

	out := make([]byte, 0, a.bytesReceived)
	for i := 0; i < a.expectedCount; i++ {
		out = append(out, a.received[i]...)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Assemble",
		"transfer_id": a.transferID,
		"chunk_count": a.expectedCount,
		"total_bytes": len(out),
	}).Info("Transfer reassembled")

	return out, nil
}
