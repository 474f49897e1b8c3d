// Package chunk implements the chunk codec for file transfers: splitting a
// byte stream into fixed-size ordered chunks and reassembling them exactly
// once on the receiving side.
//
// Splitting is a pure function over byte buffers. Reassembly tolerates chunks
// arriving in any order; the chunk index is the only ordering key.
package chunk

import (
	"fmt"

	"github.com/Gokul-labb/p2p-proto/limits"
)

// Chunk is a bounded-size ordered slice of a transfer's payload.
type Chunk struct {
	// TransferID identifies the transfer this chunk belongs to.
	TransferID string
	// Index is the zero-based position of this chunk in the file.
	Index int
	// Data is the chunk payload.
	Data []byte
	// IsFinal is true for the last chunk of the transfer.
	IsFinal bool
}

// Count returns the number of chunks needed for size bytes with the given
// chunk size, using ceiling division. A zero-byte file has zero chunks.
func Count(size uint64, chunkSize int) int {
	if chunkSize <= 0 {
		return 0
	}
	return int((size + uint64(chunkSize) - 1) / uint64(chunkSize))
}

// Split divides data into index-ordered chunks of at most chunkSize bytes.
// Every chunk except possibly the last carries exactly chunkSize bytes; the
// last chunk carries the remainder and has IsFinal set. Chunk payloads alias
// the input slice; callers that mutate data after splitting must copy first.
func Split(transferID string, data []byte, chunkSize int) []Chunk {
	if chunkSize <= 0 || len(data) == 0 {
		return nil
	}

	count := Count(uint64(len(data)), chunkSize)
	chunks := make([]Chunk, 0, count)

	for i := 0; i < count; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, Chunk{
			TransferID: transferID,
			Index:      i,
			Data:       data[start:end],
			IsFinal:    i == count-1,
		})
	}

	return chunks
}

// Validate checks a chunk against the protocol size limits and the expected
// chunk count for its transfer.
func Validate(c Chunk, expectedCount int) error {
	if c.Index < 0 || c.Index >= expectedCount {
		return fmt.Errorf("%w: index %d not in [0, %d)", ErrIndexOutOfRange, c.Index, expectedCount)
	}
	if err := limits.ValidateChunkPayload(c.Data); err != nil {
		return err
	}
	return nil
}
