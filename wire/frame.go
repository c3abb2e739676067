// SPDX-License-Identifier: LGPL-3.0-or-later

// Package wire implements the length-prefixed framing used both by the
// handshake and by post-handshake request/response traffic: every
// length field is a 4-byte big-endian unsigned integer, exactly as the
// original's struct.pack("!I", ...) framing.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrShortRead is wrapped into the error returned by ReadExact when a
// read fails partway through a frame — a clean close is only a clean
// close if it happens before the first byte.
var ErrShortRead = errors.New("wire: short read")

const lenFieldSize = 4

// ReadExact reads exactly n bytes from r. A clean EOF before any byte
// is read returns (nil, nil), signaling an ordinary peer disconnect.
// Any other failure, including EOF after partial progress, returns a
// wrapped ErrShortRead.
func ReadExact(r io.Reader, n int) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if err != nil {
		if read == 0 && errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: wanted %d bytes, got %d: %v", ErrShortRead, n, read, err)
	}
	return buf, nil
}

// readLenPrefixed reads a 4-byte big-endian length followed by that
// many bytes. A clean close before the length field returns (nil, nil).
func readLenPrefixed(r io.Reader) ([]byte, error) {
	lenBuf, err := ReadExact(r, lenFieldSize)
	if err != nil {
		return nil, err
	}
	if lenBuf == nil {
		return nil, nil
	}
	n := binary.BigEndian.Uint32(lenBuf)
	body, err := ReadExact(r, int(n))
	if err != nil {
		return nil, err
	}
	if body == nil {
		// A close exactly at a value boundary, after its length was
		// already read, is mid-frame — fatal, not clean.
		return nil, fmt.Errorf("%w: closed before %d-byte value", ErrShortRead, n)
	}
	return body, nil
}

// writeLenPrefixed writes len(body) as a 4-byte big-endian prefix
// followed by body, in a single Write call.
func writeLenPrefixed(w io.Writer, body []byte) error {
	buf := make([]byte, lenFieldSize+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[lenFieldSize:], body)
	_, err := w.Write(buf)
	return err
}

// Frame is one sealed request or response unit: an encrypted
// transaction code and an encrypted payload.
type Frame struct {
	TransCode []byte
	Payload   []byte
}

// ReadFrame reads payload_len, trans_code_len, the encrypted trans
// code, then the encrypted payload — in that wire order. It returns
// (nil, nil) on a clean peer disconnect before the first field.
func ReadFrame(r io.Reader) (*Frame, error) {
	payloadLenBuf, err := ReadExact(r, lenFieldSize)
	if err != nil {
		return nil, err
	}
	if payloadLenBuf == nil {
		return nil, nil
	}
	payloadLen := binary.BigEndian.Uint32(payloadLenBuf)

	codeLenBuf, err := ReadExact(r, lenFieldSize)
	if err != nil {
		return nil, err
	}
	if codeLenBuf == nil {
		return nil, fmt.Errorf("%w: closed after payload length, before code length", ErrShortRead)
	}
	codeLen := binary.BigEndian.Uint32(codeLenBuf)

	code, err := ReadExact(r, int(codeLen))
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, fmt.Errorf("%w: closed before %d-byte trans code", ErrShortRead, codeLen)
	}

	payload, err := ReadExact(r, int(payloadLen))
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: closed before %d-byte payload", ErrShortRead, payloadLen)
	}

	return &Frame{TransCode: code, Payload: payload}, nil
}

// WriteFrame writes payload_len, trans_code_len, the trans code, then
// the payload, matching ReadFrame's field order.
func WriteFrame(w io.Writer, f *Frame) error {
	buf := make([]byte, 2*lenFieldSize+len(f.TransCode)+len(f.Payload))
	binary.BigEndian.PutUint32(buf[0:], uint32(len(f.Payload)))
	binary.BigEndian.PutUint32(buf[4:], uint32(len(f.TransCode)))
	copy(buf[8:], f.TransCode)
	copy(buf[8+len(f.TransCode):], f.Payload)
	_, err := w.Write(buf)
	return err
}

// ReadValue reads one length-prefixed value, as used during the
// handshake for p, g, and the public keys. A clean close before the
// length field returns (nil, nil); any later failure is fatal.
func ReadValue(r io.Reader) ([]byte, error) {
	return readLenPrefixed(r)
}

// WriteValue writes one length-prefixed value.
func WriteValue(w io.Writer, value []byte) error {
	return writeLenPrefixed(w, value)
}
