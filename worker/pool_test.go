// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package worker

import (
	"context"
	"testing"
	"time"

	"github.com/go-lpc/strax/format"
)

func TestPoolRunStopsOnContextCancel(t *testing.T) {
	tbl := format.NewTable()
	tbl.Set(1, format.DefaultFirmware(10, 10))
	tbl.SetChannel(1, 0, 5)

	dir := t.TempDir()
	w1 := New("0", NewQueueSource(), tbl, dir, "testhost")
	w2 := New("1", NewQueueSource(), tbl, dir, "testhost")
	pool := NewPool(w1, w2)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := pool.Run(ctx); err != nil {
		t.Fatalf("unexpected pool error: %+v", err)
	}
}
