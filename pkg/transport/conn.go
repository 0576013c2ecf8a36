// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	mqtterrors "github.com/absmach/gmqtt/pkg/errors"
)

var _ Transport = (*Conn)(nil)

// Conn adapts a net.Conn to the Transport interface.
type Conn struct {
	conn    net.Conn
	closing atomic.Bool
	once    sync.Once
	wio     sync.Mutex
	rio     sync.Mutex
}

// NewConn wraps a TCP or TLS connection.
func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn: conn,
	}
}

// Write writes b to the connection.
func (c *Conn) Write(b []byte) error {
	c.wio.Lock()
	defer c.wio.Unlock()

	if c.closing.Load() {
		return mqtterrors.ErrTransportClosing
	}
	if _, err := c.conn.Write(b); err != nil {
		c.closing.Store(true)
		return err
	}
	return nil
}

// Read reads up to n bytes from the connection.
func (c *Conn) Read(ctx context.Context, n int) ([]byte, error) {
	c.rio.Lock()
	defer c.rio.Unlock()

	if c.closing.Load() {
		return nil, nil
	}

	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, n)
	m, err := c.conn.Read(buf)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	switch {
	case err == nil:
		return buf[:m], nil
	case errors.Is(err, io.EOF):
		return buf[:m], nil
	case c.closing.Load():
		// Closed locally while blocked in Read.
		return nil, nil
	default:
		c.closing.Store(true)
		return nil, err
	}
}

// IsClosing reports whether the connection is closing.
func (c *Conn) IsClosing() bool {
	return c.closing.Load()
}

// Close closes the connection.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.closing.Store(true)
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
