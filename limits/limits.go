// Package limits provides centralized size limits for the file transfer protocol.
// This ensures consistent validation across different components of the system.
package limits

import (
	"errors"
	"fmt"
)

const (
	// ChunkSize is the payload size of each file chunk (1 MiB).
	// All chunks except the final one carry exactly this many bytes.
	ChunkSize = 1024 * 1024

	// MaxFileSize is the maximum file size accepted for transfer (100 MiB).
	// Requests above this limit are rejected before any network activity.
	MaxFileSize = 100 * 1024 * 1024

	// MaxFileNameLength is the maximum allowed file name length in bytes.
	// This prevents memory exhaustion from excessively long names and
	// matches typical filesystem limits.
	MaxFileNameLength = 255

	// MaxChunkPayload is the absolute maximum payload accepted in a single
	// chunk message. Chunks larger than ChunkSize never occur in well-formed
	// transfers; this hard cap protects against hostile senders.
	MaxChunkPayload = ChunkSize
)

var (
	// ErrFileTooLarge indicates a file exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("file too large")

	// ErrFileNameTooLong indicates a file name exceeds MaxFileNameLength.
	ErrFileNameTooLong = errors.New("file name too long")

	// ErrFileNameEmpty indicates an empty file name was provided.
	ErrFileNameEmpty = errors.New("empty file name")

	// ErrChunkTooLarge indicates a chunk payload exceeds MaxChunkPayload.
	ErrChunkTooLarge = errors.New("chunk payload too large")

	// ErrEmptyPayload indicates an empty chunk payload was provided.
	ErrEmptyPayload = errors.New("empty chunk payload")
)

// ValidateFileSize validates a file size against MaxFileSize.
// Returns an error with context including the actual and maximum sizes.
func ValidateFileSize(size uint64) error {
	if size > MaxFileSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, size, MaxFileSize)
	}
	return nil
}

// ValidateFileName validates a file name length against MaxFileNameLength.
func ValidateFileName(name string) error {
	if len(name) == 0 {
		return ErrFileNameEmpty
	}
	if len(name) > MaxFileNameLength {
		return fmt.Errorf("%w: name length %d exceeds limit %d", ErrFileNameTooLong, len(name), MaxFileNameLength)
	}
	return nil
}

// ValidateChunkPayload validates a chunk payload against MaxChunkPayload.
func ValidateChunkPayload(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	if len(data) > MaxChunkPayload {
		return fmt.Errorf("%w: payload %d exceeds limit %d", ErrChunkTooLarge, len(data), MaxChunkPayload)
	}
	return nil
}
