// Package protocol defines the wire messages of the file conversion
// transfer protocol and their binary encoding.
//
// Messages are encoded as a one-byte message type followed by BigEndian
// fixed-width fields and length-prefixed variable fields. Optional fields
// carry an explicit presence byte so absence round-trips losslessly through
// serialization.
package protocol

import (
	"errors"

	"github.com/Gokul-labb/p2p-proto/chunk"
)

// ProtocolID identifies the file conversion protocol on a stream.
const ProtocolID = "/convert/1.0.0"

// MessageType identifies the kind of a wire message.
type MessageType uint8

const (
	// MsgTransferRequest opens a transfer: metadata before any chunks.
	MsgTransferRequest MessageType = 0x01
	// MsgChunk carries one payload chunk.
	MsgChunk MessageType = 0x02
	// MsgTransferResponse closes a transfer with the receiver's outcome.
	MsgTransferResponse MessageType = 0x03
)

var (
	// ErrMessageTooShort indicates a message without a complete header.
	ErrMessageTooShort = errors.New("message too short")

	// ErrMessageTruncated indicates a message shorter than its declared
	// field lengths.
	ErrMessageTruncated = errors.New("message truncated")

	// ErrUnknownMessageType indicates an unrecognized message type byte.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrFieldTooLong indicates a variable-length field exceeding its limit.
	ErrFieldTooLong = errors.New("field too long")
)

// TransferRequest announces an incoming transfer: metadata sent before the
// first chunk.
type TransferRequest struct {
	// ID uniquely identifies the transfer.
	ID string
	// Filename is the original file name.
	Filename string
	// Size is the file size in bytes.
	Size uint64
	// SourceFormat is the detected format of the payload.
	SourceFormat string
	// TargetFormat is the requested conversion format, nil when no
	// conversion is requested.
	TargetFormat *string
	// ReturnResult asks the receiver to send the converted bytes back.
	ReturnResult bool
	// ChunkCount is the number of chunks that will follow.
	ChunkCount int
}

// TransferResponse reports the receiver's outcome for a transfer.
type TransferResponse struct {
	// ID matches the request's transfer ID.
	ID string
	// Success reports whether the transfer (and any conversion) succeeded.
	Success bool
	// Error carries the failure message, nil on success.
	Error *string
	// ConvertedData holds the converted payload when ReturnResult was set,
	// nil otherwise.
	ConvertedData []byte
	// ConvertedFilename names the converted payload, nil when absent.
	ConvertedFilename *string
	// ProcessingTimeMS is the receiver-side processing time in milliseconds.
	ProcessingTimeMS uint64
}

// Message is implemented by all wire messages.
type Message interface {
	messageType() MessageType
}

func (*TransferRequest) messageType() MessageType  { return MsgTransferRequest }
func (*TransferResponse) messageType() MessageType { return MsgTransferResponse }

// ChunkMessage adapts a codec chunk to the wire.
type ChunkMessage struct {
	chunk.Chunk
}

func (*ChunkMessage) messageType() MessageType { return MsgChunk }
