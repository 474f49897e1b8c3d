package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Gokul-labb/p2p-proto/chunk"
	"github.com/Gokul-labb/p2p-proto/limits"
)

const (
	presenceAbsent  = 0x00
	presencePresent = 0x01
)

// buffer is an append-only encoder for wire fields.
type buffer struct {
	data []byte
}

func (b *buffer) putByte(v byte)  { b.data = append(b.data, v) }
func (b *buffer) putBool(v bool)  { b.putByte(boolByte(v)) }
func (b *buffer) putUint32(v uint32) {
	b.data = binary.BigEndian.AppendUint32(b.data, v)
}
func (b *buffer) putUint64(v uint64) {
	b.data = binary.BigEndian.AppendUint64(b.data, v)
}

// putString appends a uint16 length prefix followed by the raw bytes.
func (b *buffer) putString(s string) {
	b.data = binary.BigEndian.AppendUint16(b.data, uint16(len(s)))
	b.data = append(b.data, s...)
}

// putBytes appends a uint32 length prefix followed by the raw bytes.
func (b *buffer) putBytes(p []byte) {
	b.putUint32(uint32(len(p)))
	b.data = append(b.data, p...)
}

func (b *buffer) putOptionalString(s *string) {
	if s == nil {
		b.putByte(presenceAbsent)
		return
	}
	b.putByte(presencePresent)
	b.putString(*s)
}

func (b *buffer) putOptionalBytes(p []byte) {
	if p == nil {
		b.putByte(presenceAbsent)
		return
	}
	b.putByte(presencePresent)
	b.putBytes(p)
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// reader is a cursor over an encoded message payload. Every read validates
// the remaining length; short input surfaces ErrMessageTruncated.
type reader struct {
	data []byte
	off  int
}

func (r *reader) remaining() int { return len(r.data) - r.off }

func (r *reader) readByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, ErrMessageTruncated
	}
	v := r.data[r.off]
	r.off++
	return v, nil
}

func (r *reader) readBool() (bool, error) {
	v, err := r.readByte()
	return v != 0, err
}

func (r *reader) readUint32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, ErrMessageTruncated
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) readUint64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, ErrMessageTruncated
	}
	v := binary.BigEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v, nil
}

func (r *reader) readString() (string, error) {
	if r.remaining() < 2 {
		return "", ErrMessageTruncated
	}
	n := int(binary.BigEndian.Uint16(r.data[r.off:]))
	r.off += 2
	if r.remaining() < n {
		return "", ErrMessageTruncated
	}
	s := string(r.data[r.off : r.off+n])
	r.off += n
	return s, nil
}

func (r *reader) readBytes() ([]byte, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	if n > math.MaxInt32 || r.remaining() < int(n) {
		return nil, ErrMessageTruncated
	}
	p := make([]byte, n)
	copy(p, r.data[r.off:r.off+int(n)])
	r.off += int(n)
	return p, nil
}

func (r *reader) readOptionalString() (*string, error) {
	present, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if present == presenceAbsent {
		return nil, nil
	}
	s, err := r.readString()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *reader) readOptionalBytes() ([]byte, error) {
	present, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if present == presenceAbsent {
		return nil, nil
	}
	return r.readBytes()
}

// Encode serializes a message with its leading type byte.
func Encode(m Message) ([]byte, error) {
	b := &buffer{data: []byte{byte(m.messageType())}}

	switch msg := m.(type) {
	case *TransferRequest:
		if err := limits.ValidateFileName(msg.Filename); err != nil {
			return nil, err
		}
		b.putString(msg.ID)
		b.putString(msg.Filename)
		b.putUint64(msg.Size)
		b.putString(msg.SourceFormat)
		b.putOptionalString(msg.TargetFormat)
		b.putBool(msg.ReturnResult)
		b.putUint32(uint32(msg.ChunkCount))
	case *ChunkMessage:
		if len(msg.Data) > limits.MaxChunkPayload {
			return nil, fmt.Errorf("%w: chunk payload %d bytes", ErrFieldTooLong, len(msg.Data))
		}
		b.putString(msg.TransferID)
		b.putUint32(uint32(msg.Index))
		b.putBool(msg.IsFinal)
		b.putBytes(msg.Data)
	case *TransferResponse:
		b.putString(msg.ID)
		b.putBool(msg.Success)
		b.putOptionalString(msg.Error)
		b.putOptionalBytes(msg.ConvertedData)
		b.putOptionalString(msg.ConvertedFilename)
		b.putUint64(msg.ProcessingTimeMS)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessageType, m)
	}

	return b.data, nil
}

// Decode parses a wire message from its leading type byte.
func Decode(data []byte) (Message, error) {
	if len(data) < 1 {
		return nil, ErrMessageTooShort
	}

	r := &reader{data: data, off: 1}

	switch MessageType(data[0]) {
	case MsgTransferRequest:
		return decodeTransferRequest(r)
	case MsgChunk:
		return decodeChunk(r)
	case MsgTransferResponse:
		return decodeTransferResponse(r)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownMessageType, data[0])
	}
}

func decodeTransferRequest(r *reader) (*TransferRequest, error) {
	var (
		msg TransferRequest
		err error
	)
	if msg.ID, err = r.readString(); err != nil {
		return nil, err
	}
	if msg.Filename, err = r.readString(); err != nil {
		return nil, err
	}
	if msg.Size, err = r.readUint64(); err != nil {
		return nil, err
	}
	if msg.SourceFormat, err = r.readString(); err != nil {
		return nil, err
	}
	if msg.TargetFormat, err = r.readOptionalString(); err != nil {
		return nil, err
	}
	if msg.ReturnResult, err = r.readBool(); err != nil {
		return nil, err
	}
	count, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	msg.ChunkCount = int(count)
	return &msg, nil
}

func decodeChunk(r *reader) (*ChunkMessage, error) {
	var (
		msg ChunkMessage
		err error
	)
	if msg.TransferID, err = r.readString(); err != nil {
		return nil, err
	}
	index, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	msg.Index = int(index)
	if msg.IsFinal, err = r.readBool(); err != nil {
		return nil, err
	}
	if msg.Data, err = r.readBytes(); err != nil {
		return nil, err
	}
	if len(msg.Data) > limits.MaxChunkPayload {
		return nil, fmt.Errorf("%w: chunk payload %d bytes", ErrFieldTooLong, len(msg.Data))
	}
	return &msg, nil
}

func decodeTransferResponse(r *reader) (*TransferResponse, error) {
	var (
		msg TransferResponse
		err error
	)
	if msg.ID, err = r.readString(); err != nil {
		return nil, err
	}
	if msg.Success, err = r.readBool(); err != nil {
		return nil, err
	}
	if msg.Error, err = r.readOptionalString(); err != nil {
		return nil, err
	}
	if msg.ConvertedData, err = r.readOptionalBytes(); err != nil {
		return nil, err
	}
	if msg.ConvertedFilename, err = r.readOptionalString(); err != nil {
		return nil, err
	}
	if msg.ProcessingTimeMS, err = r.readUint64(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// NewChunkMessage wraps a codec chunk for the wire.
func NewChunkMessage(c chunk.Chunk) *ChunkMessage {
	return &ChunkMessage{Chunk: c}
}
