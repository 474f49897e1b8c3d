package transfer

import (
	"testing"
	"time"
)

func TestSweepRetentionRemovesOldTerminal(t *testing.T) {
	tp := newMockTimeProvider()
	reg := NewRegistry(10, tp)
	reaper := NewReaper(reg, DefaultReaperConfig(), tp)

	old := newTestState(t, tp)
	young := newTestState(t, tp)
	running := newTestState(t, tp)
	for _, s := range []*State{old, young, running} {
		if err := reg.Register(s); err != nil {
			t.Fatal(err)
		}
	}

	if err := old.Fail("boom"); err != nil {
		t.Fatal(err)
	}
	tp.advance(301 * time.Second)
	if err := young.Fail("boom"); err != nil {
		t.Fatal(err)
	}

	removed := reaper.SweepRetention()
	if removed != 1 {
		t.Fatalf("SweepRetention removed %d, want 1", removed)
	}

	if _, ok := reg.GetSnapshot(old.ID()); ok {
		t.Error("terminal transfer older than retention still registered")
	}
	// A terminal transfer younger than the window remains queryable.
	if _, ok := reg.GetSnapshot(young.ID()); !ok {
		t.Error("young terminal transfer was reaped")
	}
	if _, ok := reg.GetSnapshot(running.ID()); !ok {
		t.Error("running transfer was reaped")
	}
}

func TestSweepStalledForceFails(t *testing.T) {
	tp := newMockTimeProvider()
	reg := NewRegistry(10, tp)
	reaper := NewReaper(reg, DefaultReaperConfig(), tp)

	stalled := newTestState(t, tp)
	if err := reg.Register(stalled); err != nil {
		t.Fatal(err)
	}
	if err := stalled.Advance(StatusNegotiating); err != nil {
		t.Fatal(err)
	}

	tp.advance(200 * time.Second)
	fresh := newTestState(t, tp)
	if err := reg.Register(fresh); err != nil {
		t.Fatal(err)
	}

	tp.advance(101 * time.Second) // stalled at 301s elapsed, fresh at 101s

	expired := reaper.SweepStalled()
	if expired != 1 {
		t.Fatalf("SweepStalled expired %d, want 1", expired)
	}

	snap, _ := reg.GetSnapshot(stalled.ID())
	if snap.Status != StatusFailed {
		t.Errorf("stalled transfer status = %s, want Failed", snap.Status)
	}
	if snap.LastError != StallReason {
		t.Errorf("stalled transfer LastError = %q, want %q", snap.LastError, StallReason)
	}
	// The sweep also requests cancellation so a handler blocked on the
	// transfer's cancel channel is released.
	select {
	case <-stalled.CancelChan():
	default:
		t.Error("cancel channel not closed after stall sweep")
	}

	freshSnap, _ := reg.GetSnapshot(fresh.ID())
	if freshSnap.Status.IsTerminal() {
		t.Error("fresh transfer was expired")
	}

	// The force-failed entry is removed by a later retention sweep.
	tp.advance(301 * time.Second)
	reaper.SweepRetention()
	if _, ok := reg.GetSnapshot(stalled.ID()); ok {
		t.Error("force-failed transfer not removed by retention sweep")
	}
}

func TestStalledAbsentFromListActiveAfterSweep(t *testing.T) {
	tp := newMockTimeProvider()
	reg := NewRegistry(10, tp)
	reaper := NewReaper(reg, DefaultReaperConfig(), tp)

	s := newTestState(t, tp)
	if err := reg.Register(s); err != nil {
		t.Fatal(err)
	}

	tp.advance(301 * time.Second)
	reaper.SweepStalled()

	if active := reg.ListActive(); len(active) != 0 {
		t.Errorf("ListActive after stall sweep = %v, want empty", active)
	}
}

func TestReaperConfigDefaults(t *testing.T) {
	r := NewReaper(NewRegistry(1, nil), ReaperConfig{}, nil)
	def := DefaultReaperConfig()
	if r.cfg != def {
		t.Errorf("zero config = %+v, want defaults %+v", r.cfg, def)
	}
}
