// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package worker

import (
	"sync"
	"time"
)

// FailCounter accumulates per-board BoardFail counts across every worker
// sharing it. It is safe for concurrent use.
type FailCounter struct {
	mu     sync.Mutex
	counts map[int]int64
}

// NewFailCounter returns an empty FailCounter.
func NewFailCounter() *FailCounter {
	return &FailCounter{counts: make(map[int]int64)}
}

// Add folds n board-fail events for boardID into the counter.
func (c *FailCounter) Add(boardID int, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[boardID] += n
}

// Drain returns a snapshot of the accumulated counts and resets the
// counter to empty.
func (c *FailCounter) Drain() map[int]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.counts
	c.counts = make(map[int]int64)
	return out
}

// DataPerChannel accumulates per-global-channel byte counts across every
// worker sharing it. It is safe for concurrent use.
type DataPerChannel struct {
	mu    sync.Mutex
	bytes map[int16]int64
}

// NewDataPerChannel returns an empty DataPerChannel.
func NewDataPerChannel() *DataPerChannel {
	return &DataPerChannel{bytes: make(map[int16]int64)}
}

// Add folds n bytes of channel data for channel into the counter.
func (c *DataPerChannel) Add(channel int16, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytes[channel] += n
}

// AddAll folds a whole decode pass's per-channel byte counts in at once.
func (c *DataPerChannel) AddAll(m map[int16]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch, n := range m {
		c.bytes[ch] += n
	}
}

// Drain returns a snapshot of the accumulated byte counts and resets the
// counter to empty.
func (c *DataPerChannel) Drain() map[int16]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.bytes
	c.bytes = make(map[int16]int64)
	return out
}

// Stats holds the wall-clock totals a Worker surfaces once it stops:
// bytes and fragments written, events processed, a histogram of the
// batch sizes its source handed it, and the cumulative time spent
// parsing versus compressing.
type Stats struct {
	Bytes              int64
	Fragments          int64
	Events             int64
	BatchSizeHistogram map[int]int64
	ProcessingTime     time.Duration
	CompressionTime    time.Duration
}

func newStats() Stats {
	return Stats{BatchSizeHistogram: make(map[int]int64)}
}
