package transfer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// StallReason is the failure reason recorded when the reaper expires a
// transfer that never reached a terminal status.
const StallReason = "stalled"

// ReaperConfig holds the cleanup policy for the background reaper.
type ReaperConfig struct {
	// SweepInterval is how often terminal transfers are swept (default 60s).
	SweepInterval time.Duration
	// ExpiryInterval is how often stalled transfers are checked (default 30s).
	ExpiryInterval time.Duration
	// Retention is how long terminal transfers stay queryable (default 300s).
	Retention time.Duration
	// StallTimeout is the maximum lifetime of a non-terminal transfer
	// (default 300s).
	StallTimeout time.Duration
}

// DefaultReaperConfig returns the reference cleanup policy.
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		SweepInterval:  60 * time.Second,
		ExpiryInterval: 30 * time.Second,
		Retention:      300 * time.Second,
		StallTimeout:   300 * time.Second,
	}
}

// Reaper evicts terminal transfers past the retention window and expires
// stalled in-flight transfers. It runs two independent sweeps on fixed
// intervals; neither blocks new registrations.
type Reaper struct {
	registry *Registry
	cfg      ReaperConfig
	tp       TimeProvider
}

// NewReaper creates a reaper over the registry. Zero config fields take the
// defaults; a nil TimeProvider selects the real clock.
func NewReaper(registry *Registry, cfg ReaperConfig, tp TimeProvider) *Reaper {
	def := DefaultReaperConfig()
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.ExpiryInterval <= 0 {
		cfg.ExpiryInterval = def.ExpiryInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = def.StallTimeout
	}
	if tp == nil {
		tp = DefaultTimeProvider{}
	}
	return &Reaper{registry: registry, cfg: cfg, tp: tp}
}

// Run executes the sweep loops until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	logrus.WithFields(logrus.Fields{
		"function":        "Run",
		"sweep_interval":  r.cfg.SweepInterval,
		"expiry_interval": r.cfg.ExpiryInterval,
		"retention":       r.cfg.Retention,
		"stall_timeout":   r.cfg.StallTimeout,
	}).Info("Cleanup reaper started")

	sweep := time.NewTicker(r.cfg.SweepInterval)
	expire := time.NewTicker(r.cfg.ExpiryInterval)
	defer sweep.Stop()
	defer expire.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.WithFields(logrus.Fields{
				"function": "Run",
			}).Info("Cleanup reaper stopped")
			return
		case <-sweep.C:
			r.SweepRetention()
		case <-expire.C:
			r.SweepStalled()
		}
	}
}

// SweepRetention removes terminal transfers whose terminal timestamp is
// older than the retention window. Returns the number removed.
func (r *Reaper) SweepRetention() int {
	removed := 0
	for _, snap := range r.registry.ListAll() {
		if !snap.Status.IsTerminal() {
			continue
		}
		if r.tp.Since(snap.TerminalAt) <= r.cfg.Retention {
			continue
		}
		r.registry.Remove(snap.ID)
		removed++
		logrus.WithFields(logrus.Fields{
			"function":    "SweepRetention",
			"transfer_id": snap.ID,
			"status":      snap.Status.String(),
		}).Info("Terminal transfer reaped")
	}
	return removed
}

// SweepStalled force-fails non-terminal transfers whose total elapsed time
// exceeds the stall timeout. The failed entry is removed by a later
// retention sweep. Returns the number expired.
func (r *Reaper) SweepStalled() int {
	expired := 0
	for _, snap := range r.registry.ListActive() {
		if r.tp.Since(snap.StartTime) <= r.cfg.StallTimeout {
			continue
		}
		id := snap.ID
		err := r.registry.Mutate(id, func(s *State) error {
			// Flip the cancellation flag first so anything parked on the
			// transfer's cancel channel, such as a blocked stream read,
			// is released when the entry fails.
			s.requestCancel()
			return s.Fail(StallReason)
		})
		if err != nil {
			// Entry finished or was removed between the listing and the
			// mutation; nothing to expire.
			continue
		}
		expired++
		logrus.WithFields(logrus.Fields{
			"function":    "SweepStalled",
			"transfer_id": id,
			"elapsed":     r.tp.Since(snap.StartTime),
			"timeout":     r.cfg.StallTimeout,
		}).Warn("Stalled transfer expired")
	}
	return expired
}
