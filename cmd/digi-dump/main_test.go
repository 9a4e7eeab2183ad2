// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-lpc/strax/digi"
	"github.com/go-lpc/strax/format"
)

func writeWords(t *testing.T, fname string, words []uint32) {
	t.Helper()

	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	if err := os.WriteFile(fname, buf, 0644); err != nil {
		t.Fatalf("could not write test dump %q: %+v", fname, err)
	}
}

func TestProcess(t *testing.T) {
	tmp := t.TempDir()
	fname := filepath.Join(tmp, "board-1.raw")

	writeWords(t, fname, []uint32{
		0xA0000006, // header, words_in_event=6
		0x1,        // channel_mask=0b1
		0x0,        // unused
		1000,       // event_time
		0x00010002, // payload word 0
		0x00040003, // payload word 1
		0xFFFFFFFF, // sentinel
	})

	tbl := format.NewTable()
	tbl.Set(1, format.DefaultFirmware(10, 10))
	tbl.SetChannel(1, 0, 5)

	dec := &digi.Decoder{Table: tbl}

	out := new(strings.Builder)
	err := process(out, dec, fname, 1)
	if err != nil {
		t.Fatalf("could not digi-dump: %+v", err)
	}

	want := "=== " + fname + " (board=1, 7 words) ===\n" +
		"  channel=   5 time=          10000 samples=   4 baseline=0\n" +
		"events=1 board-fails=0\n"
	if got := out.String(); got != want {
		t.Fatalf("invalid digi-dump output:\ngot:\n%s\nwant:\n%s\n", got, want)
	}
}

func TestProcessInvalidLength(t *testing.T) {
	tmp := t.TempDir()
	fname := filepath.Join(tmp, "truncated.raw")
	if err := os.WriteFile(fname, []byte{0x1, 0x2, 0x3}, 0644); err != nil {
		t.Fatalf("could not write test dump: %+v", err)
	}

	dec := &digi.Decoder{Table: format.NewTable()}
	out := new(strings.Builder)
	err := process(out, dec, fname, 1)
	if err == nil {
		t.Fatalf("expected an error for a truncated dump")
	}
}

func TestLoadTableWithoutDB(t *testing.T) {
	tbl, err := loadTable("", 1)
	if err != nil {
		t.Fatalf("could not load default table: %+v", err)
	}
	if _, ok := tbl.Entry(1); !ok {
		t.Fatalf("expected a default-firmware entry for board 1")
	}
	if _, ok := tbl.Channel(1, 0); !ok {
		t.Fatalf("expected an identity channel map for board 1")
	}
}
