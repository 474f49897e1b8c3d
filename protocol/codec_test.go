package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gokul-labb/p2p-proto/chunk"
)

func strPtr(s string) *string { return &s }

func TestTransferRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  *TransferRequest
	}{
		{
			name: "with target format",
			msg: &TransferRequest{
				ID:           "3f2a9c1e-0001-4000-8000-0000deadbeef",
				Filename:     "notes.txt",
				Size:         2621440,
				SourceFormat: "Text",
				TargetFormat: strPtr("PDF"),
				ReturnResult: true,
				ChunkCount:   3,
			},
		},
		{
			name: "without target format",
			msg: &TransferRequest{
				ID:           "3f2a9c1e-0002-4000-8000-0000deadbeef",
				Filename:     "raw.bin",
				Size:         1,
				SourceFormat: "Unknown",
				TargetFormat: nil,
				ReturnResult: false,
				ChunkCount:   1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, byte(MsgTransferRequest), data[0])

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, decoded, "optional field presence must round-trip without loss")
		})
	}
}

func TestChunkMessageRoundTrip(t *testing.T) {
	msg := NewChunkMessage(chunk.Chunk{
		TransferID: "transfer-xyz",
		Index:      7,
		Data:       []byte{0xde, 0xad, 0xbe, 0xef},
		IsFinal:    true,
	})

	data, err := Encode(msg)
	require.NoError(t, err)
	assert.Equal(t, byte(MsgChunk), data[0])

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestTransferResponseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  *TransferResponse
	}{
		{
			name: "success with converted payload",
			msg: &TransferResponse{
				ID:                "t-1",
				Success:           true,
				Error:             nil,
				ConvertedData:     []byte("%PDF-1.4 converted"),
				ConvertedFilename: strPtr("notes.pdf"),
				ProcessingTimeMS:  1500,
			},
		},
		{
			name: "failure",
			msg: &TransferResponse{
				ID:               "t-2",
				Success:          false,
				Error:            strPtr("file size 200000000 exceeds limit"),
				ProcessingTimeMS: 0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, decoded)
		})
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	assert.ErrorIs(t, decodeErr(t, nil), ErrMessageTooShort)

	_, err := Decode([]byte{0xff, 0x00})
	assert.ErrorIs(t, err, ErrUnknownMessageType)

	// A valid message with the tail cut off at various points must always
	// fail with a truncation error, never decode partially.
	full, err := Encode(&TransferRequest{
		ID:           "id",
		Filename:     "f.txt",
		Size:         10,
		SourceFormat: "Text",
		TargetFormat: strPtr("PDF"),
		ChunkCount:   1,
	})
	require.NoError(t, err)

	for cut := 1; cut < len(full); cut++ {
		_, err := Decode(full[:cut])
		assert.ErrorIsf(t, err, ErrMessageTruncated, "decode of %d/%d bytes", cut, len(full))
	}
}

func decodeErr(t *testing.T, data []byte) error {
	t.Helper()
	_, err := Decode(data)
	return err
}

func TestChunkDeclaredLengthBeyondPayload(t *testing.T) {
	data, err := Encode(NewChunkMessage(chunk.Chunk{
		TransferID: "t",
		Index:      0,
		Data:       []byte{1, 2, 3, 4},
	}))
	require.NoError(t, err)

	// Inflate the declared data length past the actual payload.
	data[len(data)-8] = 0xff

	_, err = Decode(data)
	assert.ErrorIs(t, err, ErrMessageTruncated)
}
