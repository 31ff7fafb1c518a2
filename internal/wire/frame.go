// Package wire implements the length-prefixed framing protocol used
// between voxrelay clients and the server: a 4-byte big-endian length
// prefix followed by exactly that many payload bytes.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameLength is the largest payload length accepted by ReadFrame.
// Anything larger is rejected as a protocol violation before the read
// loop ever attempts to buffer it.
const MaxFrameLength = 16 * 1024 * 1024

var (
	// ErrTransportClosed indicates the peer closed the connection, either
	// cleanly (EOF before any bytes of a new frame) or mid-frame.
	ErrTransportClosed = errors.New("wire: transport closed")

	// ErrTransportError indicates an I/O error unrelated to the peer
	// closing the connection.
	ErrTransportError = errors.New("wire: transport error")

	// ErrProtocolViolation indicates the peer sent a length prefix of 0
	// or greater than MaxFrameLength.
	ErrProtocolViolation = errors.New("wire: protocol violation")
)

// WriteFrame emits a 4-byte big-endian length prefix followed by payload.
// It loops until every byte is written, returning ErrTransportClosed if
// the peer closes mid-write or ErrTransportError on any other I/O error.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	if err := writeFull(w, lenBuf[:]); err != nil {
		return err
	}
	return writeFull(w, payload)
}

// writeFull loops on Write until every byte of buf has been written,
// treating a short write on a live stream as a continuation rather than
// an error; only EOF or a hard I/O error terminates the loop early.
func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if n > 0 {
			buf = buf[n:]
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return ErrTransportClosed
			}
			return fmt.Errorf("%w: %v", ErrTransportError, err)
		}
		if n == 0 && len(buf) > 0 {
			return fmt.Errorf("%w: zero-byte write on ready stream", ErrTransportError)
		}
	}
	return nil
}

// ReadFrame reads a 4-byte big-endian length prefix L, rejects L == 0 or
// L > MaxFrameLength with ErrProtocolViolation, then reads exactly L
// payload bytes. It returns ErrTransportClosed if the peer disconnects
// before a complete frame (length prefix or payload) has arrived.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if err := readFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 || length > MaxFrameLength {
		return nil, fmt.Errorf("%w: length prefix %d out of range (1..%d)", ErrProtocolViolation, length, MaxFrameLength)
	}

	payload := make([]byte, length)
	if err := readFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// readFull loops on Read until buf is completely filled, mapping any
// EOF (including a short read cut off by peer close) to
// ErrTransportClosed and any other error to ErrTransportError.
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTransportClosed
	}
	return fmt.Errorf("%w: %v", ErrTransportError, err)
}
