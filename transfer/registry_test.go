package transfer

import (
	"errors"
	"testing"
)

func newTestState(t *testing.T, tp TimeProvider) *State {
	t.Helper()
	req, err := NewRequest("data.bin", 4096, "Unknown", "", false)
	if err != nil {
		t.Fatal(err)
	}
	return NewState(req, "peer-1", tp)
}

func TestRegisterAndSnapshot(t *testing.T) {
	reg := NewRegistry(5, newMockTimeProvider())
	s := newTestState(t, newMockTimeProvider())

	if err := reg.Register(s); err != nil {
		t.Fatalf("Register: %v", err)
	}

	snap, ok := reg.GetSnapshot(s.ID())
	if !ok {
		t.Fatal("GetSnapshot: transfer not found")
	}
	if snap.ID != s.ID() {
		t.Errorf("snapshot ID = %q, want %q", snap.ID, s.ID())
	}

	if _, ok := reg.GetSnapshot("no-such-id"); ok {
		t.Error("GetSnapshot returned ok for unknown ID")
	}
}

func TestRegisterDuplicateRejected(t *testing.T) {
	reg := NewRegistry(5, newMockTimeProvider())
	s := newTestState(t, newMockTimeProvider())

	if err := reg.Register(s); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(s); !errors.Is(err, ErrDuplicateTransfer) {
		t.Errorf("duplicate Register = %v, want ErrDuplicateTransfer", err)
	}
}

func TestCapacityLimit(t *testing.T) {
	reg := NewRegistry(2, newMockTimeProvider())

	first := newTestState(t, newMockTimeProvider())
	second := newTestState(t, newMockTimeProvider())
	third := newTestState(t, newMockTimeProvider())

	if err := reg.Register(first); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(second); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(third); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Register over capacity = %v, want ErrCapacityExceeded", err)
	}

	// Freeing a slot by reaching a terminal state admits the next
	// registration immediately.
	if err := first.Fail("gave up"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(third); err != nil {
		t.Errorf("Register after slot freed = %v, want nil", err)
	}
	if got := reg.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount = %d, want 2", got)
	}
}

func TestMutateIsTheOnlyWritePath(t *testing.T) {
	reg := NewRegistry(5, newMockTimeProvider())
	s := newTestState(t, newMockTimeProvider())
	if err := reg.Register(s); err != nil {
		t.Fatal(err)
	}

	err := reg.Mutate(s.ID(), func(st *State) error {
		return st.Advance(StatusNegotiating)
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	snap, _ := reg.GetSnapshot(s.ID())
	if snap.Status != StatusNegotiating {
		t.Errorf("status after Mutate = %s, want Negotiating", snap.Status)
	}

	if err := reg.Mutate("missing", func(*State) error { return nil }); !errors.Is(err, ErrTransferNotFound) {
		t.Errorf("Mutate unknown ID = %v, want ErrTransferNotFound", err)
	}
}

func TestListActiveExcludesTerminal(t *testing.T) {
	reg := NewRegistry(5, newMockTimeProvider())
	running := newTestState(t, newMockTimeProvider())
	done := newTestState(t, newMockTimeProvider())

	if err := reg.Register(running); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(done); err != nil {
		t.Fatal(err)
	}
	if err := done.Fail("boom"); err != nil {
		t.Fatal(err)
	}

	active := reg.ListActive()
	if len(active) != 1 || active[0].ID != running.ID() {
		t.Errorf("ListActive = %v, want only %s", active, running.ID())
	}

	if all := reg.ListAll(); len(all) != 2 {
		t.Errorf("ListAll returned %d entries, want 2", len(all))
	}
}

func TestCancelSetsFlagAndStatus(t *testing.T) {
	reg := NewRegistry(5, newMockTimeProvider())
	s := newTestState(t, newMockTimeProvider())
	if err := reg.Register(s); err != nil {
		t.Fatal(err)
	}

	if s.CancelRequested() {
		t.Fatal("cancel flag set before Cancel")
	}

	if err := reg.Cancel(s.ID()); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if !s.CancelRequested() {
		t.Error("cancel flag not set")
	}

	ch, err := reg.CancelChan(s.ID())
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-ch:
	default:
		t.Error("cancel channel not closed")
	}

	snap, _ := reg.GetSnapshot(s.ID())
	if snap.Status != StatusCancelled {
		t.Errorf("status = %s, want Cancelled", snap.Status)
	}
}

func TestCancelOnTerminalIsNoOp(t *testing.T) {
	reg := NewRegistry(5, newMockTimeProvider())
	s := newTestState(t, newMockTimeProvider())
	if err := reg.Register(s); err != nil {
		t.Fatal(err)
	}
	for _, st := range []Status{StatusNegotiating, StatusSending, StatusWaitingResponse, StatusCompleted} {
		if err := s.Advance(st); err != nil {
			t.Fatal(err)
		}
	}

	if err := reg.Cancel(s.ID()); err != nil {
		t.Fatalf("Cancel on completed transfer = %v, want nil", err)
	}

	snap, _ := reg.GetSnapshot(s.ID())
	if snap.Status != StatusCompleted {
		t.Errorf("Cancel overwrote terminal status: %s", snap.Status)
	}
}

func TestRemove(t *testing.T) {
	reg := NewRegistry(5, newMockTimeProvider())
	s := newTestState(t, newMockTimeProvider())
	if err := reg.Register(s); err != nil {
		t.Fatal(err)
	}

	reg.Remove(s.ID())
	if _, ok := reg.GetSnapshot(s.ID()); ok {
		t.Error("transfer still present after Remove")
	}
}

func TestConcurrentMutation(t *testing.T) {
	reg := NewRegistry(64, newMockTimeProvider())

	states := make([]*State, 16)
	for i := range states {
		states[i] = newTestState(t, newMockTimeProvider())
		if err := reg.Register(states[i]); err != nil {
			t.Fatal(err)
		}
		if err := states[i].Advance(StatusNegotiating); err != nil {
			t.Fatal(err)
		}
		if err := states[i].Advance(StatusSending); err != nil {
			t.Fatal(err)
		}
	}

	done := make(chan struct{})
	for _, s := range states {
		go func(s *State) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				_ = reg.Mutate(s.ID(), func(st *State) error {
					return st.RecordChunkSent(i, 1)
				})
				_, _ = reg.GetSnapshot(s.ID())
			}
		}(s)
	}
	for range states {
		<-done
	}

	for _, s := range states {
		snap, _ := reg.GetSnapshot(s.ID())
		if snap.BytesSent != 100 {
			t.Errorf("transfer %s BytesSent = %d, want 100", snap.ID, snap.BytesSent)
		}
	}
}
