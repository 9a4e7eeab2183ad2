// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// digi-dump decodes and displays raw digitizer packet dump files.
//
// Usage: digi-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//  $> digi-dump -board=3 -db=conditions ./testdata/board-3.raw
//  === ./testdata/board-3.raw (board=3, 7 words) ===
//    channel=   5 time=     1800000000 samples=   2 baseline=0
//  events=1 board-fails=0
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/strax/digi"
	"github.com/go-lpc/strax/format"
	"github.com/go-lpc/strax/internal/mmap"
)

func main() {
	log.SetPrefix("digi-dump: ")
	log.SetFlags(0)

	board := flag.Int("board", 0, "board id the dumped words belong to")
	dbName := flag.String("db", "", "conditions database holding the format table (empty: default firmware, no channel map)")

	flag.Usage = func() {
		fmt.Printf(`digi-dump decodes and displays raw digitizer packet dump files.

Usage: digi-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input packet dump")
	}

	tbl, err := loadTable(*dbName, *board)
	if err != nil {
		log.Fatalf("could not load format table: %+v", err)
	}

	dec := &digi.Decoder{Table: tbl}
	dec.OnGarble = func(boardID int, msg string) {
		fmt.Fprintf(os.Stdout, "board=%d garble: %s\n", boardID, msg)
	}

	for _, fname := range flag.Args() {
		err := process(os.Stdout, dec, fname, *board)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

// loadTable loads the board-format table from the conditions database, or
// falls back to a single default-firmware entry with an identity channel
// map so a raw dump can be inspected without a database handy.
func loadTable(dbName string, board int) (*format.Table, error) {
	if dbName == "" {
		tbl := format.NewTable()
		tbl.Set(board, format.DefaultFirmware(10, 10))
		for i := 0; i < 64; i++ {
			tbl.SetChannel(board, i, int16(i))
		}
		return tbl, nil
	}

	db, err := format.Open(dbName)
	if err != nil {
		return nil, fmt.Errorf("digi-dump: could not open conditions db: %w", err)
	}
	defer db.Close()

	return db.LoadTable(context.Background())
}

func process(w io.Writer, dec *digi.Decoder, fname string, board int) error {
	h, err := mmap.Open(fname)
	if err != nil {
		return fmt.Errorf("could not mmap %q: %w", fname, err)
	}
	defer h.Close()

	words, err := wordsFrom(h)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "=== %s (board=%d, %d words) ===\n", fname, board, len(words))

	pkt := &digi.DataPacket{BoardID: board, Words: words}
	stats, err := dec.Decode(pkt,
		func(rec digi.Record) {
			fmt.Fprintf(w, "  channel=% 4d time=% 15d samples=% 4d baseline=%d\n",
				rec.Channel, rec.TimeNs, len(rec.Samples), rec.Baseline)
		},
		func(boardID int, timeNs int64) {
			fmt.Fprintf(w, "  deadtime board=%d time=%d\n", boardID, timeNs)
		},
	)
	if err != nil {
		return fmt.Errorf("could not decode %q: %w", fname, err)
	}

	fmt.Fprintf(w, "events=%d board-fails=%d\n", stats.EventsProcessed, stats.BoardFails)
	return nil
}

// wordsFrom reinterprets a memory-mapped byte buffer as a slice of
// little-endian 32-bit words, matching the digitizer's wire format.
func wordsFrom(h *mmap.Handle) ([]uint32, error) {
	n := h.Len()
	if n%4 != 0 {
		return nil, fmt.Errorf("digi-dump: file length %d is not a multiple of 4 bytes", n)
	}

	words := make([]uint32, n/4)
	var buf [4]byte
	for i := range words {
		for j := 0; j < 4; j++ {
			buf[j] = h.At(i*4 + j)
		}
		words[i] = binary.LittleEndian.Uint32(buf[:])
	}
	return words, nil
}
