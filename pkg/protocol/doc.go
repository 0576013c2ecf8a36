// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package protocol implements the connection core of an MQTT client.
//
// A Protocol sits between a transport.Transport and the code that consumes
// broker packets:
//
//	Transport ──Read──▶ read loop ──Decode──▶ Queue ──▶ consumer
//	    ▲
//	    └──Write── Send* ◀── caller
//
// ConnectionMade attaches a transport, opens the connection gate and starts
// one read loop goroutine for it. The read loop accumulates bytes, splits
// them into packets with codec.Decode and puts them on the inbound queue in
// wire order.
//
// When the connection goes away, either because the read loop saw a
// malformed stream or an unexpected end of stream, or because ConnectionLost
// was called, the teardown runs exactly once: the gate is cleared, a
// DISCONNECT packet with an empty payload is put on the current queue, the
// read loop is cancelled and the queue is replaced. Consumers treat the
// DISCONNECT packet as the end of the connection and use the queue
// returned by the next ConnectionMade.
//
// The Send methods frame packets with a Builder and write them. Writes to a
// closing transport are dropped with a warning instead of failing.
//
// Example:
//
//	p := protocol.New(protocol.Config{Version: packet.V311})
//	q := p.ConnectionMade(transport.NewConn(conn))
//	if err := p.SendAuth(packet.ConnectOptions{ClientID: "c1", CleanStart: true}); err != nil {
//		return err
//	}
//	pkt, err := q.Get(ctx)
package protocol
