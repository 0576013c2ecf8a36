// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	mqtterrors "github.com/absmach/gmqtt/pkg/errors"
	"github.com/gorilla/websocket"
)

var _ Transport = (*WebSocket)(nil)

// closeGrace bounds the time spent sending a close frame.
const closeGrace = time.Second

// WebSocket adapts a websocket connection to the Transport interface.
type WebSocket struct {
	conn    *websocket.Conn
	r       io.Reader
	closing atomic.Bool
	once    sync.Once
	rio     sync.Mutex
	wio     sync.Mutex
}

// NewWebSocket wraps an established websocket connection.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{
		conn: conn,
	}
}

// Write sends b as a single binary message.
func (w *WebSocket) Write(b []byte) error {
	w.wio.Lock()
	defer w.wio.Unlock()

	if w.closing.Load() {
		return mqtterrors.ErrTransportClosing
	}
	if err := w.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		w.closing.Store(true)
		return err
	}
	return nil
}

// Read reads up to n bytes, advancing across message boundaries.
func (w *WebSocket) Read(ctx context.Context, n int) ([]byte, error) {
	w.rio.Lock()
	defer w.rio.Unlock()

	if w.closing.Load() {
		return nil, nil
	}

	stop := context.AfterFunc(ctx, func() {
		w.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, n)
	for {
		if w.r == nil {
			// Advance to next message
			_, r, err := w.conn.NextReader()
			if err != nil {
				return nil, w.readErr(ctx, err)
			}
			w.r = r
		}

		m, err := w.r.Read(buf)
		if errors.Is(err, io.EOF) {
			// At end of message
			w.r = nil
			if m > 0 {
				return buf[:m], nil
			}
			continue
		}
		if err != nil {
			return nil, w.readErr(ctx, err)
		}
		return buf[:m], nil
	}
}

// readErr maps a websocket read error to the Transport read contract.
func (w *WebSocket) readErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		// Peer closed the stream: report it as an empty read.
		return nil
	}
	if w.closing.Load() {
		return nil
	}
	w.closing.Store(true)
	return err
}

// IsClosing reports whether the connection is closing.
func (w *WebSocket) IsClosing() bool {
	return w.closing.Load()
}

// Close sends a close frame and closes the underlying connection.
func (w *WebSocket) Close() error {
	var err error
	w.once.Do(func() {
		w.closing.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		err = w.conn.Close()
	})
	return err
}

// RemoteAddr returns the remote network address.
func (w *WebSocket) RemoteAddr() string {
	if addr := w.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
