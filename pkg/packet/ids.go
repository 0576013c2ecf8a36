// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packet

import "sync"

// IDs allocates message identifiers in the range 1-65535, wrapping to 1.
type IDs struct {
	mu   sync.Mutex
	last uint16
}

// Next returns the next message identifier. It never returns 0.
func (i *IDs) Next() uint16 {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.last++
	if i.last == 0 {
		i.last = 1
	}
	return i.last
}

// Reset restarts allocation at 1.
func (i *IDs) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.last = 0
}
