// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-lpc/strax/digi"
	"github.com/go-lpc/strax/format"
)

func newTestPacket(boardID int, words ...uint32) *digi.DataPacket {
	return &digi.DataPacket{BoardID: boardID, Words: words}
}

func TestWorkerDrainsQueueAndWritesChunks(t *testing.T) {
	tbl := format.NewTable()
	tbl.Set(1, format.DefaultFirmware(10, 10))
	tbl.SetChannel(1, 0, 5)

	src := NewQueueSource()
	src.Push(newTestPacket(1,
		0xA0000006,
		0x1,
		0x0,
		1000,
		0x00010002,
		0x00040003,
		0xFFFFFFFF,
	))

	dir := t.TempDir()
	w := New("0", src, tbl, dir, "testhost")
	w.RequestStop() // jump straight to the drain-and-finalize path

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("unexpected worker error: %+v", err)
	}

	path := filepath.Join(dir, "000000", "testhost_0")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected chunk file at %s: %+v", path, err)
	}

	stats := w.Stats()
	if stats.Events != 1 {
		t.Fatalf("invalid events processed: got=%d, want=1", stats.Events)
	}
	if stats.Fragments == 0 {
		t.Fatalf("expected at least one fragment to be written")
	}

	sentinel := filepath.Join(dir, "THE_END", "testhost_0")
	if _, err := os.Stat(sentinel); err != nil {
		t.Fatalf("expected end sentinel at %s: %+v", sentinel, err)
	}
}

func TestWorkerStopsOnUnknownChannel(t *testing.T) {
	tbl := format.NewTable()
	tbl.Set(1, format.DefaultFirmware(10, 10))
	// no channel mapping registered: fatal.

	src := NewQueueSource()
	src.Push(newTestPacket(1,
		0xA0000006,
		0x1,
		0x0,
		1000,
		0x00010002,
		0x00040003,
		0xFFFFFFFF,
	))

	dir := t.TempDir()
	w := New("0", src, tbl, dir, "testhost")
	w.RequestStop()

	err := w.Run(context.Background())
	if err == nil {
		t.Fatalf("expected a fatal error")
	}
}

func TestWorkerDoesNotFinalizeEarlyOnZeroFragmentPacket(t *testing.T) {
	tbl := format.NewTable()
	tbl.Set(1, format.DefaultFirmware(10, 10))
	tbl.SetChannel(1, 0, 5)

	dir := t.TempDir()
	w := New("0", NewQueueSource(), tbl, dir, "testhost")

	chunk0File := filepath.Join(dir, "000000", "testhost_0")

	// A real event at time_ns=10000 routes chunk 0 and leaves the
	// watermark at 0; nothing is old enough to finalize yet.
	if err := w.processPacket(newTestPacket(1,
		0xA0000006,
		0x1,
		0x0,
		1000,
		0x00010002,
		0x00040003,
		0xFFFFFFFF,
	)); err != nil {
		t.Fatalf("unexpected error on packet A: %+v", err)
	}
	if _, err := os.Stat(chunk0File); !os.IsNotExist(err) {
		t.Fatalf("did not expect chunk 0 to be finalized yet, stat err=%v", err)
	}

	// An all-board-fail event routes no fragment at all: the watermark
	// stays at the BeginPacket sentinel. This must not be mistaken for
	// "everything is old enough" and flush chunk 0 prematurely.
	if err := w.processPacket(newTestPacket(1,
		0xA0000004,
		0x1|(1<<26), // board-fail bit set
		0x0,
		1000,
		0xFFFFFFFF,
	)); err != nil {
		t.Fatalf("unexpected error on packet B (all board-fail): %+v", err)
	}
	if _, err := os.Stat(chunk0File); !os.IsNotExist(err) {
		t.Fatalf("chunk 0 was finalized early after a zero-fragment packet, stat err=%v", err)
	}

	// A later real event at time_ns=1.2e10 (chunk 2) advances the
	// watermark far enough that chunk 0 is now safe to finalize.
	if err := w.processPacket(newTestPacket(1,
		0xA0000006,
		0x1,
		0x0,
		1_200_000_000,
		0x00010002,
		0x00040003,
		0xFFFFFFFF,
	)); err != nil {
		t.Fatalf("unexpected error on packet C: %+v", err)
	}
	if _, err := os.Stat(chunk0File); err != nil {
		t.Fatalf("expected chunk 0 to be finalized once the watermark advanced: %+v", err)
	}
}

func TestWorkerBatchedMode(t *testing.T) {
	tbl := format.NewTable()
	tbl.Set(2, format.DefaultFirmware(10, 10))
	tbl.SetChannel(2, 0, 9)

	src := NewQueueSource()
	for i := 0; i < 3; i++ {
		src.Push(newTestPacket(2,
			0xA0000006,
			0x1,
			0x0,
			1000,
			0x00010002,
			0x00040003,
			0xFFFFFFFF,
		))
	}

	dir := t.TempDir()
	w := New("1", src, tbl, dir, "testhost", WithBatched())
	w.RequestStop()

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("unexpected worker error: %+v", err)
	}

	stats := w.Stats()
	if stats.Events != 3 {
		t.Fatalf("invalid events processed: got=%d, want=3", stats.Events)
	}
	if stats.BatchSizeHistogram[3] != 1 {
		t.Fatalf("expected one batch of size 3, got histogram=%v", stats.BatchSizeHistogram)
	}
}
