// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package queue provides the unbounded FIFO that hands decoded packets from
// a connection's read loop to its consumer.
package queue

import (
	"context"
	"sync"

	"github.com/absmach/gmqtt/pkg/codec"
)

// Queue is an unbounded FIFO of packets. Put never blocks.
type Queue struct {
	mu      sync.Mutex
	items   []codec.Packet
	waiters chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		waiters: make(chan struct{}),
	}
}

// Put appends pkts in order and wakes blocked consumers.
func (q *Queue) Put(pkts ...codec.Packet) {
	if len(pkts) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, pkts...)
	close(q.waiters)
	q.waiters = make(chan struct{})
}

// Get removes and returns the oldest packet, blocking until one is available
// or ctx is done.
func (q *Queue) Get(ctx context.Context) (codec.Packet, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			pkt := q.pop()
			q.mu.Unlock()
			return pkt, nil
		}
		wait := q.waiters
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return codec.Packet{}, ctx.Err()
		}
	}
}

// TryGet returns the oldest packet without blocking.
func (q *Queue) TryGet() (codec.Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return codec.Packet{}, false
	}
	return q.pop(), true
}

// Len returns the number of queued packets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) pop() codec.Packet {
	pkt := q.items[0]
	q.items[0] = codec.Packet{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return pkt
}
