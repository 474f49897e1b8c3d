package transfer

import (
	"github.com/google/uuid"

	"github.com/Gokul-labb/p2p-proto/chunk"
	"github.com/Gokul-labb/p2p-proto/limits"
)

// Request is the immutable descriptor created when a send is initiated.
// It is built once per send call and never mutated.
type Request struct {
	// ID uniquely identifies the transfer, generated at creation.
	ID string
	// Filename is the base name of the file being sent.
	Filename string
	// Size is the total file size in bytes.
	Size uint64
	// SourceFormat is the detected format of the file.
	SourceFormat string
	// TargetFormat is the requested conversion format; empty means no
	// conversion.
	TargetFormat string
	// ReturnResult requests the converted result be sent back.
	ReturnResult bool
	// ChunkCount is ceil(Size / ChunkSize).
	ChunkCount int
}

// NewRequest builds a transfer request with a freshly generated ID after
// validating the file name and size against the protocol limits.
func NewRequest(filename string, size uint64, sourceFormat, targetFormat string, returnResult bool) (Request, error) {
	if err := limits.ValidateFileName(filename); err != nil {
		return Request{}, err
	}
	if err := limits.ValidateFileSize(size); err != nil {
		return Request{}, err
	}

	return Request{
		ID:           uuid.New().String(),
		Filename:     filename,
		Size:         size,
		SourceFormat: sourceFormat,
		TargetFormat: targetFormat,
		ReturnResult: returnResult,
		ChunkCount:   chunk.Count(size, limits.ChunkSize),
	}, nil
}
