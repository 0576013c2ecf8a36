// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"fmt"
)

const (
	// MaxMultiplier is the varint multiplier of the fourth length byte.
	// A length byte at this multiplier must not carry the continuation bit.
	MaxMultiplier = 128 * 128 * 128

	// MaxRemainingLength is the largest value a four byte varint encodes.
	MaxRemainingLength = 268435455

	// MinHeaderSize is a command byte plus a single length byte.
	MinHeaderSize = 2

	continuationBit = 0x80
	lengthMask      = 0x7F
)

var (
	// ErrMalformedLength is returned when a remaining-length field is longer than four bytes.
	ErrMalformedLength = errors.New("malformed remaining length")

	// ErrRemainingLength is returned when a length cannot be encoded in four bytes.
	ErrRemainingLength = errors.New("remaining length out of range")
)

// Packet is a single control packet cut from the stream.
type Packet struct {
	// Command is the first fixed-header byte: packet type and flags.
	Command byte

	// Payload holds the bytes following the fixed header.
	Payload []byte
}

// Type returns the packet type nibble of the command byte, e.g. Publish.
func (p Packet) Type() byte {
	return Type(p.Command)
}

// Flags returns the low nibble of the command byte.
func (p Packet) Flags() byte {
	return p.Command & 0x0F
}

// String returns a short description suitable for logs.
func (p Packet) String() string {
	return fmt.Sprintf("%s(0x%02x) len=%d", TypeName(p.Command), p.Command, len(p.Payload))
}

// Decode extracts every complete packet from buf.
//
// It returns the number of bytes occupied by the emitted packets. Bytes of a
// trailing partial packet are not counted. If a remaining-length field needs
// more than four bytes decoding stops with ErrMalformedLength. Packets
// completed before the malformed header are still returned with the bytes
// they occupy.
func Decode(buf []byte) (int, []Packet, error) {
	var (
		consumed int
		pkts     []Packet
	)

	for len(buf)-consumed >= MinHeaderSize {
		rest := buf[consumed:]

		length, n, err := DecodeLength(rest[1:])
		if err != nil {
			return consumed, pkts, err
		}
		if n == 0 {
			// Header not complete yet.
			break
		}

		headerSize := 1 + n
		if headerSize+length > len(rest) {
			// Payload not complete yet.
			break
		}

		payload := make([]byte, length)
		copy(payload, rest[headerSize:headerSize+length])
		pkts = append(pkts, Packet{
			Command: rest[0],
			Payload: payload,
		})
		consumed += headerSize + length
	}

	return consumed, pkts, nil
}

// DecodeLength decodes a remaining-length varint from the start of b.
//
// It returns the value and the number of bytes it occupies. When b ends before
// the varint does, both are zero and the error is nil.
func DecodeLength(b []byte) (int, int, error) {
	value, multiplier := 0, 1
	for i, c := range b {
		value += int(c&lengthMask) * multiplier
		if c&continuationBit == 0 {
			return value, i + 1, nil
		}
		if multiplier == MaxMultiplier {
			return 0, 0, ErrMalformedLength
		}
		multiplier *= 128
	}

	return 0, 0, nil
}

// EncodeLength encodes n as a remaining-length varint.
func EncodeLength(n int) ([]byte, error) {
	return AppendLength(make([]byte, 0, 4), n)
}

// AppendLength appends the remaining-length varint of n to dst.
func AppendLength(dst []byte, n int) ([]byte, error) {
	if n < 0 || n > MaxRemainingLength {
		return dst, fmt.Errorf("%w: %d", ErrRemainingLength, n)
	}

	for {
		c := byte(n % 128)
		n /= 128
		if n > 0 {
			c |= continuationBit
		}
		dst = append(dst, c)
		if n == 0 {
			return dst, nil
		}
	}
}

// Frame prepends a fixed header for command to body.
func Frame(command byte, body []byte) ([]byte, error) {
	out := make([]byte, 0, 1+4+len(body))
	out = append(out, command)

	out, err := AppendLength(out, len(body))
	if err != nil {
		return nil, err
	}

	return append(out, body...), nil
}
