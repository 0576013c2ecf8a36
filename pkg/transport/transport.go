// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import "context"

// ReadSize is the read request size used by connection read loops.
const ReadSize = 64 * 1024

// Transport is the byte pipe underneath an MQTT connection.
type Transport interface {
	// Write writes b in full. Concurrent writes are serialised so that
	// call order is wire order.
	Write(b []byte) error

	// IsClosing reports whether Close was called or the transport saw a
	// fatal I/O error.
	IsClosing() bool

	// Close closes the transport. It is safe to call more than once.
	Close() error

	// Read returns up to n bytes. It blocks until data arrives, the peer
	// closes the stream or ctx is done. End of stream is reported as an
	// empty result with a nil error.
	Read(ctx context.Context, n int) ([]byte, error)

	// RemoteAddr returns the peer address for logs.
	RemoteAddr() string
}
