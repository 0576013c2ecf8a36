// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package transport adapts network connections to the Transport contract
// consumed by the MQTT protocol core.
//
// # Adapters
//
//   - Conn wraps any net.Conn (plain TCP or TLS).
//   - WebSocket wraps a gorilla/websocket connection for MQTT over WebSocket.
//     Each Write is sent as one binary message; reads stream across message
//     boundaries because MQTT packets may span several messages.
//
// # Read Semantics
//
// Read mirrors a non-blocking event-loop read: it returns whatever bytes
// are available, up to the requested size. End of stream is not an error,
// it is an empty read. The protocol core decides what an empty read means
// by also asking IsClosing:
//
//	Read → []byte{}, IsClosing() == false  → peer reset the connection
//	Read → []byte{}, IsClosing() == true   → local close in progress
//
// Cancelling the context passed to Read forces the pending read to return,
// so a read loop can be torn down while it is blocked on the network.
//
// # Dialing
//
// Dial picks an adapter from the broker URL scheme:
//
//	mqtt://, tcp://           plain TCP, default port 1883
//	mqtts://, ssl://, tls://  TLS, default port 8883
//	ws://                     WebSocket, default port 80
//	wss://                    WebSocket over TLS, default port 443
package transport
