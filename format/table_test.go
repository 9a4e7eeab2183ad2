// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package format

import "testing"

func TestTableEntry(t *testing.T) {
	tbl := NewTable()

	if _, ok := tbl.Entry(24); ok {
		t.Fatalf("unexpected entry for unknown board")
	}

	tbl.Set(24, DPPDAWFirmware())
	e, ok := tbl.Entry(24)
	if !ok {
		t.Fatalf("expected entry for board 24")
	}
	if e.WideClock() {
		t.Fatalf("DPP-DAW V1724 entry should use the narrow, software-tracked clock")
	}
	if got, want := e.ChannelHeaderWords, 2; got != want {
		t.Fatalf("invalid channel header words: got=%d, want=%d", got, want)
	}
}

func TestTableChannel(t *testing.T) {
	tbl := NewTable()

	if _, ok := tbl.Channel(24, 3); ok {
		t.Fatalf("unexpected channel mapping for unknown board/channel")
	}

	tbl.SetChannel(24, 3, 1203)
	id, ok := tbl.Channel(24, 3)
	if !ok {
		t.Fatalf("expected channel mapping for board=24 channel=3")
	}
	if got, want := id, int16(1203); got != want {
		t.Fatalf("invalid global channel id: got=%d, want=%d", got, want)
	}
}

func TestDefaultFirmware(t *testing.T) {
	e := DefaultFirmware(10, 10)
	if e.ChannelHeaderWords != 0 {
		t.Fatalf("default firmware should not carry a channel sub-header")
	}
	if e.WideClock() {
		t.Fatalf("default firmware entry should not be flagged as wide-clock")
	}
}
