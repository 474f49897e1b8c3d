package transfer

import (
	"fmt"
	"time"
)

// Snapshot is an immutable copy of a transfer's state at a point in time.
// Derived metrics (percentage, throughput, ETA) are computed from the
// captured values, so a snapshot stays consistent however long an observer
// holds it.
type Snapshot struct {
	ID                 string
	Peer               string
	Filename           string
	TotalSize          uint64
	BytesSent          uint64
	ChunksSent         int
	TotalChunks        int
	StartTime          time.Time
	Status             Status
	ConnectionAttempts int
	LastError          string
	TerminalAt         time.Time
	CapturedAt         time.Time
}

// Elapsed returns the time between transfer start and snapshot capture.
func (s Snapshot) Elapsed() time.Duration {
	return s.CapturedAt.Sub(s.StartTime)
}

// Percentage returns the completion percentage in [0, 100]. A zero-size
// transfer reports 0.
func (s Snapshot) Percentage() float64 {
	if s.TotalSize == 0 {
		return 0
	}
	return float64(s.BytesSent) / float64(s.TotalSize) * 100.0
}

// ThroughputBPS returns the average transfer speed in bytes per second,
// or 0 when no time has elapsed.
func (s Snapshot) ThroughputBPS() float64 {
	elapsed := s.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.BytesSent) / elapsed
}

// ETASeconds estimates the seconds remaining until completion. The second
// return value is false when the estimate is unavailable: throughput is zero
// or the transfer has already moved all its bytes.
func (s Snapshot) ETASeconds() (float64, bool) {
	speed := s.ThroughputBPS()
	if speed <= 0 || s.BytesSent >= s.TotalSize {
		return 0, false
	}
	return float64(s.TotalSize-s.BytesSent) / speed, true
}

// StatusString returns a human-readable one-line description of the
// transfer's current activity.
func (s Snapshot) StatusString() string {
	switch s.Status {
	case StatusConnecting:
		return fmt.Sprintf("Connecting (attempt %d)", s.ConnectionAttempts)
	case StatusSending:
		return fmt.Sprintf("Sending chunk %d/%d", s.ChunksSent, s.TotalChunks)
	case StatusFailed:
		return fmt.Sprintf("Failed: %s", s.LastError)
	default:
		return s.Status.String()
	}
}
