// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package worker

import "testing"

func TestFailCounterAddDrain(t *testing.T) {
	c := NewFailCounter()
	c.Add(1, 3)
	c.Add(1, 2)
	c.Add(2, 1)

	got := c.Drain()
	if got[1] != 5 {
		t.Fatalf("invalid count for board 1: got=%d, want=5", got[1])
	}
	if got[2] != 1 {
		t.Fatalf("invalid count for board 2: got=%d, want=1", got[2])
	}

	if again := c.Drain(); len(again) != 0 {
		t.Fatalf("expected counter to reset after drain, got %v", again)
	}
}

func TestDataPerChannelAddAllDrain(t *testing.T) {
	c := NewDataPerChannel()
	c.Add(5, 10)
	c.AddAll(map[int16]int64{5: 20, 9: 7})

	got := c.Drain()
	if got[5] != 30 {
		t.Fatalf("invalid byte count for channel 5: got=%d, want=30", got[5])
	}
	if got[9] != 7 {
		t.Fatalf("invalid byte count for channel 9: got=%d, want=7", got[9])
	}

	if again := c.Drain(); len(again) != 0 {
		t.Fatalf("expected counter to reset after drain, got %v", again)
	}
}
