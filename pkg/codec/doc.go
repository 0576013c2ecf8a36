// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package codec implements MQTT fixed-header framing over a byte stream.
//
// # Wire Format
//
// Every MQTT control packet starts with a fixed header:
//
//	┌──────────────┬───────────────────────────┬─────────────────────┐
//	│ command byte │ remaining length (1-4 B)  │ remaining-length B  │
//	└──────────────┴───────────────────────────┴─────────────────────┘
//
// The remaining length is a base-128 varint: each byte carries seven data
// bits and uses 0x80 as the continuation bit. Four bytes encode at most
// 268,435,455.
//
// # Decoding
//
// Decode is stateless. It is handed the whole accumulation buffer of a
// connection, emits every complete packet it finds in wire order and
// reports how many bytes those packets occupied. The caller drops that
// prefix and calls Decode again once more bytes arrive:
//
//	buf = append(buf, chunk...)
//	n, pkts, err := codec.Decode(buf)
//	if err != nil {
//		// stream is corrupt, tear the connection down
//	}
//	buf = buf[n:]
//
// A remaining-length field that would need a fifth byte is reported as
// ErrMalformedLength. Truncated headers and payloads are not errors; they
// simply stay in the buffer.
package codec
