// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package gate provides a resettable readiness signal.
//
// A Gate starts closed. Set opens it and releases every goroutine blocked in
// Wait as well as any that call Wait later, until Clear closes it again.
// It is the "is this protocol connected" status of a connection.
package gate

import (
	"context"
	"sync"
)

// Gate is a binary connected/disconnected signal with waiters.
// The zero value is ready to use and closed.
type Gate struct {
	mu    sync.Mutex
	set   bool
	ready chan struct{}
}

// Set opens the gate. Calling Set on an open gate is a no-op.
func (g *Gate) Set() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.set {
		return
	}
	g.set = true
	if g.ready == nil {
		g.ready = make(chan struct{})
	}
	close(g.ready)
}

// Clear closes the gate. Goroutines already released stay released.
func (g *Gate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.set {
		return
	}
	g.set = false
	g.ready = make(chan struct{})
}

// IsSet reports whether the gate is open.
func (g *Gate) IsSet() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.set
}

// Wait blocks until the gate is open or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C returns a channel that is closed while the gate is open.
// The channel is only valid for the current closed period; after Clear
// a new channel must be fetched.
func (g *Gate) C() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ready == nil {
		g.ready = make(chan struct{})
	}
	return g.ready
}
