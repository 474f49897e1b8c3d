package transfer

// Status represents the current state of a file transfer.
type Status uint8

const (
	// StatusConnecting indicates the transfer is dialing the peer.
	StatusConnecting Status = iota
	// StatusNegotiating indicates the protocol handshake is in progress.
	StatusNegotiating
	// StatusSending indicates chunks are being streamed to the peer.
	StatusSending
	// StatusWaitingResponse indicates all chunks were sent and the transfer
	// is awaiting the peer's correlated response.
	StatusWaitingResponse
	// StatusCompleted indicates the transfer finished successfully.
	StatusCompleted
	// StatusFailed indicates the transfer failed; the reason is recorded in
	// the state's LastError.
	StatusFailed
	// StatusCancelled indicates the transfer was cancelled by the user.
	StatusCancelled
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "Connecting"
	case StatusNegotiating:
		return "Negotiating"
	case StatusSending:
		return "Sending"
	case StatusWaitingResponse:
		return "WaitingResponse"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}
