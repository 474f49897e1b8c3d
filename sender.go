package p2pfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Gokul-labb/p2p-proto/chunk"
	"github.com/Gokul-labb/p2p-proto/convert"
	"github.com/Gokul-labb/p2p-proto/limits"
	"github.com/Gokul-labb/p2p-proto/protocol"
	"github.com/Gokul-labb/p2p-proto/retry"
	"github.com/Gokul-labb/p2p-proto/transfer"
)

// ProtocolID names the transfer protocol on the wire.
const ProtocolID = protocol.ProtocolID

// ErrTransferCancelled indicates a transfer stopped by a cancel request.
var ErrTransferCancelled = errors.New("transfer cancelled")

// SendOptions describes one outbound transfer.
type SendOptions struct {
	// Peer pins the remote identity; empty accepts any peer at Addr.
	Peer string
	// Addr is the remote transport address.
	Addr string
	// FilePath is the local file to send.
	FilePath string
	// TargetFormat requests conversion on the remote side; empty sends the
	// file as-is.
	TargetFormat string
	// ReturnResult asks the remote side to send the converted content back.
	ReturnResult bool
}

// SendResult is the final outcome of an outbound transfer.
type SendResult struct {
	TransferID        string
	Success           bool
	Error             string
	ConvertedData     []byte
	ConvertedFilename string
	ProcessingTime    time.Duration
}

// Send starts an outbound transfer and returns its ID. The transfer runs in
// the background; WaitForCompletion blocks for the outcome and Progress
// streams intermediate snapshots.
func (n *Node) Send(ctx context.Context, opts SendOptions) (string, error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return "", ErrNodeClosed
	}
	n.mu.Unlock()

	data, err := os.ReadFile(opts.FilePath)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if err := limits.ValidateFileSize(uint64(len(data))); err != nil {
		return "", err
	}

	if opts.TargetFormat != "" && convert.ParseFormat(opts.TargetFormat) == convert.FormatUnknown {
		return "", fmt.Errorf("%w: unknown target format %q", convert.ErrUnsupportedConversion, opts.TargetFormat)
	}

	filename := filepath.Base(opts.FilePath)
	sourceFormat := convert.DetectFormat(data).String()

	req, err := transfer.NewRequest(filename, uint64(len(data)), sourceFormat, opts.TargetFormat, opts.ReturnResult)
	if err != nil {
		return "", err
	}

	state := transfer.NewState(req, opts.Peer, n.tp)
	if err := n.registry.Register(state); err != nil {
		return "", err
	}

	// Create the result channel before the worker can race to deliver.
	n.resultChan(req.ID)

	logrus.WithFields(logrus.Fields{
		"function":    "Send",
		"transfer_id": shortID(req.ID),
		"addr":        opts.Addr,
		"file_name":   req.Filename,
		"file_size":   req.Size,
	}).Info("Transfer started")

	// Sends stop promptly on node shutdown even when the caller's context
	// outlives the node.
	runCtx, cancelRun := context.WithCancel(ctx)
	go func() {
		select {
		case <-n.closeCh:
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	n.wg.Add(1)
	go func() {
		defer cancelRun()
		n.runSend(runCtx, req, state, data, opts)
	}()

	return req.ID, nil
}

// runSend drives one outbound transfer through the retry controller and
// delivers its final result.
func (n *Node) runSend(ctx context.Context, req transfer.Request, st *transfer.State, data []byte, opts SendOptions) {
	defer n.wg.Done()

	var resp *protocol.TransferResponse
	attempt := func(ctx context.Context) error {
		if st.CancelRequested() {
			return retry.Permanent(ErrTransferCancelled)
		}
		if err := st.BeginAttempt(); err != nil {
			return retry.Permanent(err)
		}
		r, err := n.attemptTransfer(ctx, st, req, data, opts)
		if err != nil {
			st.RecordAttemptError(err.Error())
			return err
		}
		resp = r
		return nil
	}

	err := retry.Execute(ctx, n.policy, attempt)
	switch {
	case err == nil && resp.Success:
		st.Advance(transfer.StatusCompleted)
		res := SendResult{
			TransferID:     req.ID,
			Success:        true,
			ProcessingTime: time.Duration(resp.ProcessingTimeMS) * time.Millisecond,
		}
		if resp.ConvertedData != nil {
			res.ConvertedData = resp.ConvertedData
		}
		if resp.ConvertedFilename != nil {
			res.ConvertedFilename = *resp.ConvertedFilename
		}
		n.deliverResult(res)

	case err == nil:
		reason := "rejected by peer"
		if resp.Error != nil {
			reason = *resp.Error
		}
		st.Fail(reason)
		n.deliverResult(SendResult{TransferID: req.ID, Error: reason})

	case errors.Is(err, ErrTransferCancelled):
		// Registry.Cancel already moved the status; only the result is owed.
		n.deliverResult(SendResult{TransferID: req.ID, Error: ErrTransferCancelled.Error()})

	default:
		st.Fail(err.Error())
		n.deliverResult(SendResult{TransferID: req.ID, Error: err.Error()})
	}

	n.notifier.Publish(st.Snapshot())
}

// attemptTransfer performs one complete transfer attempt: dial, negotiate,
// stream every chunk, await the response.
func (n *Node) attemptTransfer(ctx context.Context, st *transfer.State, req transfer.Request, data []byte, opts SendOptions) (*protocol.TransferResponse, error) {
	conn, err := n.transport.Dial(ctx, opts.Peer, opts.Addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// Stream reads and writes do not take a context; closing the connection
	// is what bounds them to the attempt deadline.
	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchdogDone:
		}
	}()

	stream, err := conn.OpenStream(ProtocolID)
	if err != nil {
		return nil, err
	}

	if err := st.Advance(transfer.StatusNegotiating); err != nil {
		return nil, retry.Permanent(err)
	}
	n.notifier.Publish(st.Snapshot())

	wireReq := &protocol.TransferRequest{
		ID:           req.ID,
		Filename:     req.Filename,
		Size:         req.Size,
		SourceFormat: req.SourceFormat,
		ReturnResult: req.ReturnResult,
		ChunkCount:   req.ChunkCount,
	}
	if req.TargetFormat != "" {
		target := req.TargetFormat
		wireReq.TargetFormat = &target
	}
	payload, err := protocol.Encode(wireReq)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	if err := stream.Send(payload); err != nil {
		return nil, fmt.Errorf("send transfer request: %w", err)
	}

	if err := st.Advance(transfer.StatusSending); err != nil {
		return nil, retry.Permanent(err)
	}

	for _, c := range chunk.Split(req.ID, data, limits.ChunkSize) {
		if st.CancelRequested() {
			return nil, retry.Permanent(ErrTransferCancelled)
		}
		msg, err := protocol.Encode(protocol.NewChunkMessage(c))
		if err != nil {
			return nil, retry.Permanent(err)
		}
		if err := stream.Send(msg); err != nil {
			return nil, fmt.Errorf("send chunk %d: %w", c.Index, err)
		}
		st.RecordChunkSent(c.Index, uint64(len(c.Data)))
		n.notifier.Publish(st.Snapshot())
	}

	if err := st.Advance(transfer.StatusWaitingResponse); err != nil {
		return nil, retry.Permanent(err)
	}
	n.notifier.Publish(st.Snapshot())

	respBytes, err := stream.Receive()
	if err != nil {
		return nil, fmt.Errorf("receive transfer response: %w", err)
	}
	decoded, err := protocol.Decode(respBytes)
	if err != nil {
		return nil, fmt.Errorf("decode transfer response: %w", err)
	}
	resp, ok := decoded.(*protocol.TransferResponse)
	if !ok {
		return nil, retry.Permanent(fmt.Errorf("unexpected message in response position"))
	}
	return resp, nil
}
