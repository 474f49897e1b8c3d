package p2pfile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Gokul-labb/p2p-proto/chunk"
	"github.com/Gokul-labb/p2p-proto/convert"
	"github.com/Gokul-labb/p2p-proto/limits"
	"github.com/Gokul-labb/p2p-proto/protocol"
	"github.com/Gokul-labb/p2p-proto/transfer"
	"github.com/Gokul-labb/p2p-proto/transport"
)

// handleTransferStream serves one inbound transfer: request, chunks,
// processing, response. Rejections are answered with an explicit failure
// response rather than a dropped connection, so the sender does not burn
// retry attempts on a transfer that can never succeed.
func (n *Node) handleTransferStream(peer string, stream transport.Stream) {
	raw, err := stream.Receive()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleTransferStream",
			"peer":     shortID(peer),
			"error":    err.Error(),
		}).Warn("Failed to read transfer request")
		return
	}

	decoded, err := protocol.Decode(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleTransferStream",
			"peer":     shortID(peer),
			"error":    err.Error(),
		}).Warn("Malformed transfer request")
		return
	}
	req, ok := decoded.(*protocol.TransferRequest)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "handleTransferStream",
			"peer":     shortID(peer),
		}).Warn("Unexpected message in request position")
		return
	}

	start := n.tp.Now()

	if reason := n.validateRequest(req); reason != "" {
		n.respondFailure(stream, req.ID, reason, req.ChunkCount+1)
		return
	}

	// A retry carries the same transfer ID as the attempt it replaces. An
	// entry left behind by an earlier finished attempt must not turn the
	// retry into a permanent rejection; only a still-running transfer under
	// the same ID is a genuine duplicate.
	if prev, ok := n.registry.GetSnapshot(req.ID); ok {
		if !prev.Status.IsTerminal() {
			n.respondFailure(stream, req.ID, "transfer already in progress", req.ChunkCount+1)
			return
		}
		n.registry.Remove(req.ID)
	}

	state := transfer.NewState(transfer.Request{
		ID:           req.ID,
		Filename:     req.Filename,
		Size:         req.Size,
		SourceFormat: req.SourceFormat,
		ReturnResult: req.ReturnResult,
		ChunkCount:   req.ChunkCount,
	}, peer, n.tp)
	if err := n.registry.Register(state); err != nil {
		n.respondFailure(stream, req.ID, err.Error(), req.ChunkCount+1)
		return
	}

	// Cancellation, including a stall sweep, must unblock a handler parked
	// in stream.Receive. Closing the stream is the only way to do that.
	handlerDone := make(chan struct{})
	defer close(handlerDone)
	go func() {
		select {
		case <-state.CancelChan():
			stream.Close()
		case <-handlerDone:
		}
	}()

	state.Advance(transfer.StatusNegotiating)
	state.Advance(transfer.StatusSending)

	data, err := n.receiveChunks(stream, state, req)
	if err != nil {
		state.Fail(err.Error())
		n.notifier.Publish(state.Snapshot())
		n.respondFailure(stream, req.ID, err.Error(), req.ChunkCount+1)
		return
	}

	resp, err := n.processTransfer(req, data, start)
	if err != nil {
		state.Fail(err.Error())
		n.notifier.Publish(state.Snapshot())
		n.respondFailure(stream, req.ID, err.Error(), 0)
		return
	}

	payload, err := protocol.Encode(resp)
	if err != nil {
		state.Fail(err.Error())
		return
	}
	if err := stream.Send(payload); err != nil {
		state.Fail(fmt.Sprintf("send response: %v", err))
		n.notifier.Publish(state.Snapshot())
		return
	}

	state.Advance(transfer.StatusCompleted)
	n.notifier.Publish(state.Snapshot())

	logrus.WithFields(logrus.Fields{
		"function":    "handleTransferStream",
		"transfer_id": shortID(req.ID),
		"peer":        shortID(peer),
		"file_name":   req.Filename,
		"file_size":   req.Size,
	}).Info("Inbound transfer completed")
}

// validateRequest checks an inbound request against the protocol limits.
// It returns a rejection reason, empty when the request is acceptable.
func (n *Node) validateRequest(req *protocol.TransferRequest) string {
	if err := limits.ValidateFileName(req.Filename); err != nil {
		return err.Error()
	}
	if err := limits.ValidateFileSize(req.Size); err != nil {
		return err.Error()
	}
	if expected := chunk.Count(req.Size, limits.ChunkSize); req.ChunkCount != expected {
		return fmt.Sprintf("chunk count %d does not match size %d", req.ChunkCount, req.Size)
	}
	if req.TargetFormat != nil {
		if !n.cfg.AutoConvert {
			return "conversion disabled on this node"
		}
		if convert.ParseFormat(*req.TargetFormat) == convert.FormatUnknown {
			return fmt.Sprintf("unknown target format %q", *req.TargetFormat)
		}
	}
	return ""
}

// receiveChunks reads chunk messages until the assembly is complete and
// returns the reassembled content.
func (n *Node) receiveChunks(stream transport.Stream, state *transfer.State, req *protocol.TransferRequest) ([]byte, error) {
	asm := chunk.NewAssembly(req.ID, req.ChunkCount, req.Size)

	for !asm.Complete() {
		if state.CancelRequested() {
			return nil, ErrTransferCancelled
		}

		raw, err := stream.Receive()
		if err != nil {
			return nil, fmt.Errorf("receive chunk: %w", err)
		}
		decoded, err := protocol.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode chunk: %w", err)
		}
		cm, ok := decoded.(*protocol.ChunkMessage)
		if !ok {
			return nil, fmt.Errorf("unexpected message in chunk position")
		}

		if err := asm.Add(cm.Chunk); err != nil {
			return nil, err
		}
		state.RecordChunkSent(cm.Index, uint64(len(cm.Data)))
		n.notifier.Publish(state.Snapshot())
	}

	return asm.Assemble()
}

// processTransfer converts the received content when asked to and stores it
// unless the sender wants the result returned inline.
func (n *Node) processTransfer(req *protocol.TransferRequest, data []byte, start time.Time) (*protocol.TransferResponse, error) {
	outData := data
	outName := req.Filename

	if req.TargetFormat != nil {
		source := convert.DetectFormat(data)
		target := convert.ParseFormat(*req.TargetFormat)

		converted, err := n.converter.Convert(data, source, target)
		if err != nil {
			return nil, err
		}
		outData = converted
		outName = convert.ConvertedFilename(req.Filename, target)
	}

	resp := &protocol.TransferResponse{
		ID:               req.ID,
		Success:          true,
		ProcessingTimeMS: uint64(n.tp.Since(start) / time.Millisecond),
	}

	if req.ReturnResult {
		resp.ConvertedData = outData
		name := outName
		resp.ConvertedFilename = &name
		return resp, nil
	}

	path := filepath.Join(n.cfg.OutputDir, filepath.Base(outName))
	if err := os.WriteFile(path, outData, 0o644); err != nil {
		return nil, fmt.Errorf("write output file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "processTransfer",
		"transfer_id": shortID(req.ID),
		"path":        path,
		"size":        len(outData),
	}).Info("File stored")

	name := outName
	resp.ConvertedFilename = &name
	return resp, nil
}

// respondFailure sends an explicit failure response, best-effort. The
// sender only reads the response after its last chunk, so up to drainLimit
// in-flight messages are consumed before the stream closes; dropping the
// connection with unread data would reset it and lose the response.
func (n *Node) respondFailure(stream transport.Stream, transferID, reason string, drainLimit int) {
	logrus.WithFields(logrus.Fields{
		"function":    "respondFailure",
		"transfer_id": shortID(transferID),
		"reason":      reason,
	}).Warn("Rejecting inbound transfer")

	resp := &protocol.TransferResponse{ID: transferID, Error: &reason}
	payload, err := protocol.Encode(resp)
	if err != nil {
		return
	}
	if err := stream.Send(payload); err != nil {
		return
	}

	for i := 0; i < drainLimit; i++ {
		if _, err := stream.Receive(); err != nil {
			return
		}
	}
}
