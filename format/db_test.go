// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package format

import (
	"context"
	"database/sql/driver"
	"testing"

	"github.com/go-lpc/strax/internal/fakedb"
)

func init() {
	drvName = "fakedb"
}

func TestOpen(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open format db: %+v", err)
	}
	defer db.Close()
}

func TestLoadFormatEntries(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open format db: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{
			"board_id", "channel_header_words", "channel_mask_msb_idx",
			"channel_time_msb_idx", "ns_per_clk", "ns_per_sample",
		},
		Values: [][]driver.Value{
			{int64(24), int64(2), int64(-1), int64(-1), int64(10), int64(10)},
		},
	}, func(ctx context.Context) error {
		tbl := NewTable()
		if err := db.loadFormatEntries(ctx, tbl); err != nil {
			t.Fatalf("could not load format entries: %+v", err)
		}

		e, ok := tbl.Entry(24)
		if !ok {
			t.Fatalf("expected format entry for board 24")
		}
		if got, want := e.ChannelHeaderWords, 2; got != want {
			t.Fatalf("invalid channel header words: got=%d, want=%d", got, want)
		}
		if got, want := e.NsPerClk, int64(10); got != want {
			t.Fatalf("invalid ns-per-clk: got=%d, want=%d", got, want)
		}
		return nil
	})
}

func TestLoadChannelMap(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open format db: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"board_id", "channel_index", "global_id"},
		Values: [][]driver.Value{
			{int64(24), int64(3), int64(1203)},
		},
	}, func(ctx context.Context) error {
		tbl := NewTable()
		if err := db.loadChannelMap(ctx, tbl); err != nil {
			t.Fatalf("could not load channel map: %+v", err)
		}

		id, ok := tbl.Channel(24, 3)
		if !ok {
			t.Fatalf("expected channel mapping for board=24 channel=3")
		}
		if got, want := id, int16(1203); got != want {
			t.Fatalf("invalid global channel id: got=%d, want=%d", got, want)
		}
		return nil
	})
}
