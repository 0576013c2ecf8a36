// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"

	"github.com/absmach/gmqtt/pkg/codec"
)

// Context contains metadata of the broker connection a packet arrived on.
// It is passed to Handler methods.
type Context struct {
	// SessionID is a unique identifier for this connection
	SessionID string

	// ClientID sent in CONNECT
	ClientID string

	// RemoteAddr is the broker's network address
	RemoteAddr string

	// Version is the MQTT protocol level of the connection (3, 4 or 5)
	Version byte
}

// Handler receives inbound broker packets in wire order.
//
// OnConnect is called once the broker accepted CONNECT. HandlePacket is
// called for every packet after CONNACK, including PUBLISH, acknowledgements
// and PINGRESP. OnDisconnect is called once the connection is gone.
//
// Errors returned from HandlePacket are logged and do not stop the
// connection.
type Handler interface {
	// OnConnect is called after CONNACK with a success return code.
	OnConnect(ctx context.Context, hctx *Context) error

	// HandlePacket is called for each inbound packet.
	HandlePacket(ctx context.Context, hctx *Context, pkt codec.Packet) error

	// OnDisconnect is called when the connection is lost or closed.
	OnDisconnect(ctx context.Context, hctx *Context) error
}

// NoopHandler is a Handler implementation that ignores all packets.
// Useful for testing or when only outbound traffic matters.
type NoopHandler struct{}

var _ Handler = (*NoopHandler)(nil)

func (h *NoopHandler) OnConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) HandlePacket(ctx context.Context, hctx *Context, pkt codec.Packet) error {
	return nil
}

func (h *NoopHandler) OnDisconnect(ctx context.Context, hctx *Context) error {
	return nil
}

// HandlerFunc adapts a function to a Handler that only receives packets.
type HandlerFunc func(ctx context.Context, hctx *Context, pkt codec.Packet) error

var _ Handler = HandlerFunc(nil)

func (f HandlerFunc) OnConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (f HandlerFunc) HandlePacket(ctx context.Context, hctx *Context, pkt codec.Packet) error {
	return f(ctx, hctx, pkt)
}

func (f HandlerFunc) OnDisconnect(ctx context.Context, hctx *Context) error {
	return nil
}
