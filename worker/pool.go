// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// The drain escalation timers below mirror the archival writer's
// original shutdown behavior: a first ~5s patience window for the queue
// to empty, repeated up to 10 times (~50s total when the queue stops
// shrinking; a shrinking queue restarts a window) before giving up and
// forcing every worker to abandon its remaining queue, followed by one
// last ~2s grace period for the workers to actually exit.
const (
	drainPollInterval = 10 * time.Millisecond
	drainPollCount    = 500
	drainMaxRounds    = 10
	forceQuitGrace    = 2 * time.Second
)

// Pool runs a fixed set of Workers concurrently, each on its own
// goroutine, and supervises their shutdown as a unit.
type Pool struct {
	workers []*Worker
}

// NewPool returns a Pool supervising workers.
func NewPool(workers ...*Worker) *Pool {
	return &Pool{workers: workers}
}

// Run starts every worker and blocks until they have all stopped, either
// because ctx was cancelled or because one of them hit a fatal decode
// error. It returns the first such error, if any.
func (p *Pool) Run(ctx context.Context) error {
	grp, ctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		w := w
		grp.Go(func() error {
			return w.Run(ctx)
		})
	}
	return grp.Wait()
}

// Stop requests a soft stop on every worker, then watches the queues for
// drainMaxRounds rounds of drainPollCount polls drainPollInterval apart
// before forcing a hard quit on whatever has not drained by then. A poll
// that sees the queue shrink restarts the current round's count, so a
// queue that keeps shrinking is waited on for longer than
// drainMaxRounds*drainPollCount*drainPollInterval.
func (p *Pool) Stop(pending func() int) {
	for _, w := range p.workers {
		w.RequestStop()
	}

	for round := 0; round < drainMaxRounds; round++ {
		last := pending()
		drained := false
		for i := 0; i < drainPollCount; i++ {
			time.Sleep(drainPollInterval)
			n := pending()
			if n == 0 {
				drained = true
				break
			}
			if n < last {
				// still shrinking: reset this round's patience.
				last = n
				i = 0
			}
		}
		if drained {
			return
		}
	}

	for _, w := range p.workers {
		w.ForceQuit()
	}
	time.Sleep(forceQuitGrace)
}
