// Package transfer implements per-transfer state tracking for the file
// transfer protocol: the transfer state machine, the concurrent-transfer
// registry with its capacity limit, the background cleanup reaper, and the
// progress notifier.
//
// A State is created when a transfer is registered and mutated throughout its
// life by the orchestrator (progress) and the retry controller (attempts and
// status). The Registry owns every State exclusively; callers reach state
// only through registry accessors and receive value snapshots, never mutable
// handles.
//
// Status transitions are strictly forward
// (Connecting → Negotiating → Sending → WaitingResponse → Completed) except
// that any non-terminal state may transition to Failed or Cancelled, and a
// retry attempt may re-enter Connecting through BeginAttempt. Completed,
// Failed and Cancelled are terminal: once reached, no further mutation is
// permitted and the registry enforces it.
//
// Example:
//
//	reg := transfer.NewRegistry(5, nil)
//	st := transfer.NewState(req, "peer-1", nil)
//	if err := reg.Register(st); err != nil {
//		// capacity exhausted, reject before any network activity
//	}
//	snap, _ := reg.GetSnapshot(req.ID)
//	fmt.Printf("%.1f%% complete\n", snap.Percentage())
package transfer
