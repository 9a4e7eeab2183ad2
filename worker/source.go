// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package worker

import (
	"sync"

	"github.com/go-lpc/strax/digi"
)

// QueueSource is an in-memory digi.Source backed by a mutex-guarded
// slice. It exists for tests and small standalone tools; a production
// deployment's real upstream queue is responsible for its own internal
// synchronization, as the digi.Source contract requires.
type QueueSource struct {
	mu      sync.Mutex
	packets []*digi.DataPacket
}

// NewQueueSource returns an empty QueueSource.
func NewQueueSource() *QueueSource {
	return &QueueSource{}
}

// Push enqueues pkt for a future TryDequeue/TryDequeueBatch call.
func (q *QueueSource) Push(pkt *digi.DataPacket) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.packets = append(q.packets, pkt)
}

// Len reports how many packets are currently queued.
func (q *QueueSource) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.packets)
}

// TryDequeue pops the oldest queued packet, if any.
func (q *QueueSource) TryDequeue() (*digi.DataPacket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.packets) == 0 {
		return nil, false
	}
	pkt := q.packets[0]
	q.packets = q.packets[1:]
	return pkt, true
}

// TryDequeueBatch pops every currently queued packet at once.
func (q *QueueSource) TryDequeueBatch() ([]*digi.DataPacket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.packets) == 0 {
		return nil, false
	}
	batch := q.packets
	q.packets = nil
	return batch, true
}
