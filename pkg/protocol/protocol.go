// Package protocol defines message framing for lobby, account service and
// match endpoint connections, and the raw bulk transfer sub-protocol.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	pb "github.com/NicolasHaas/matchlobby/pkg/protocol/pb"
)

const (
	// MaxMessage is the maximum framed message body size (64KB).
	MaxMessage = 65536

	// headerSize is the width of the big-endian length prefix.
	headerSize = 4
)

// ErrProtocol marks a framing or decoding failure. A connection that
// returns it must be dropped.
var ErrProtocol = errors.New("protocol error")

// Write marshals v to JSON and writes it as one length-prefixed frame.
// Format: [4-byte big-endian length][JSON payload]
func Write(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("protocol: marshal: %w", err)
	}
	if len(data) == 0 || len(data) > MaxMessage {
		return fmt.Errorf("%w: message size %d out of range", ErrProtocol, len(data))
	}

	// Header and body go out in one Write call.
	buf := make([]byte, headerSize+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data))) //nolint:gosec // length already bounds-checked above
	copy(buf[headerSize:], data)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("protocol: write: %w", err)
	}
	return nil
}

// Read reads one length-prefixed frame and unmarshals it into v.
// It returns io.EOF when the peer closed cleanly between frames.
func Read(r io.Reader, v any) error {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("%w: read length: %w", ErrProtocol, err)
	}
	length := binary.BigEndian.Uint32(hdr[:])
	if length == 0 || length > MaxMessage {
		return fmt.Errorf("%w: declared length %d out of range", ErrProtocol, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("%w: read payload: %w", ErrProtocol, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: unmarshal: %w", ErrProtocol, err)
	}
	return nil
}

// WriteMessage writes a lobby message frame.
func WriteMessage(w io.Writer, msg *pb.Message) error {
	return Write(w, msg)
}

// ReadMessage reads a lobby message frame. It never returns a partially
// decoded message: on error the result is nil.
func ReadMessage(r io.Reader) (*pb.Message, error) {
	msg := &pb.Message{}
	if err := Read(r, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
