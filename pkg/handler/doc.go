// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler provides the interface that links a client connection to
// application logic.
//
// # Data Flow
//
//	Broker → Transport → read loop → Queue → Client → Handler
//
// The client drains the inbound queue of its connection and calls the
// Handler in wire order, so a Handler sees a PUBACK only after the PUBLISH
// it acknowledges was sent, and never sees packets from two connections
// interleaved.
//
// # Handler Methods
//
//   - OnConnect: the broker accepted CONNECT
//   - HandlePacket: an inbound packet (PUBLISH, SUBACK, PINGRESP, ...)
//   - OnDisconnect: the connection is gone
//
// # Context
//
// The Context struct carries connection metadata across all handler calls:
//   - SessionID: Unique identifier for this connection
//   - ClientID: Client identifier sent in CONNECT
//   - RemoteAddr: Broker network address
//   - Version: MQTT protocol level
//
// # Example
//
//	h := handler.HandlerFunc(func(ctx context.Context, hctx *handler.Context, pkt codec.Packet) error {
//		if pkt.Type() == codec.Publish {
//			store.Save(pkt.Payload)
//		}
//		return nil
//	})
package handler
