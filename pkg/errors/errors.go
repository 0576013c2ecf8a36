// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides structured error handling for gmqtt.
package errors

import (
	"errors"
	"fmt"

	"github.com/absmach/gmqtt/pkg/codec"
)

// Connection errors
var (
	// ErrMalformedLength indicates a remaining-length field longer than four bytes.
	// The stream cannot be resynchronised and the connection is dropped.
	ErrMalformedLength = codec.ErrMalformedLength

	// ErrAbnormalReset indicates a zero-length read on a transport that was not closing.
	ErrAbnormalReset = errors.New("connection reset by peer")

	// ErrTransportClosing indicates a write attempted on a closing transport.
	ErrTransportClosing = errors.New("transport is closing")

	// ErrNotConnected indicates an operation that needs an established connection.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionRefused indicates the broker rejected CONNECT.
	ErrConnectionRefused = errors.New("connection refused")

	// ErrTimeout indicates an operation timeout.
	ErrTimeout = errors.New("timeout")

	// ErrUnsupportedScheme indicates a broker URL with an unknown scheme.
	ErrUnsupportedScheme = errors.New("unsupported scheme")

	// ErrRateLimited indicates a publish rejected by the client rate limiter.
	ErrRateLimited = errors.New("publish rate limit exceeded")
)

// ConnError wraps an error with connection context.
type ConnError struct {
	Op         string // Operation that failed
	SessionID  string // Connection session identifier
	RemoteAddr string // Broker address
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *ConnError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("mqtt %s [%s] %s: %v", e.Op, e.SessionID, e.RemoteAddr, e.Err)
	}
	return fmt.Sprintf("mqtt %s %s: %v", e.Op, e.RemoteAddr, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnError) Unwrap() error {
	return e.Err
}

// New creates a new ConnError.
func New(op, sessionID, remoteAddr string, err error) error {
	if err == nil {
		return nil
	}
	return &ConnError{
		Op:         op,
		SessionID:  sessionID,
		RemoteAddr: remoteAddr,
		Err:        err,
	}
}

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
