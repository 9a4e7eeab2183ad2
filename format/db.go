// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package format

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to load the digitizer format table and
// channel map from the MIM conditions database.
type DB struct {
	db   *sql.DB
	name string // name of the conditions database
}

// Open opens a connection to the conditions database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("format: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("format: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("format: could not ping %q db: %w", dbname, err)
	}

	return nil
}

// Close closes the underlying database handle.
func (db *DB) Close() error {
	return db.db.Close()
}

// LoadTable queries the board_format and channel_map tables and builds a
// Table from their contents.
func (db *DB) LoadTable(ctx context.Context) (*Table, error) {
	tbl := NewTable()

	if err := db.loadFormatEntries(ctx, tbl); err != nil {
		return nil, err
	}
	if err := db.loadChannelMap(ctx, tbl); err != nil {
		return nil, err
	}
	return tbl, nil
}

func (db *DB) loadFormatEntries(ctx context.Context, tbl *Table) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.db.QueryContext(ctx, `
		SELECT board_id, channel_header_words, channel_mask_msb_idx,
		       channel_time_msb_idx, ns_per_clk, ns_per_sample
		FROM board_format`,
	)
	if err != nil {
		return fmt.Errorf("format: could not query board_format: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			boardID int
			e       Entry
		)
		err = rows.Scan(
			&boardID, &e.ChannelHeaderWords, &e.ChannelMaskMSBIdx,
			&e.ChannelTimeMSBIdx, &e.NsPerClk, &e.NsPerSample,
		)
		if err != nil {
			return fmt.Errorf("format: could not scan board_format row: %w", err)
		}
		tbl.Set(boardID, e)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("format: error iterating board_format rows: %w", err)
	}
	return nil
}

func (db *DB) loadChannelMap(ctx context.Context, tbl *Table) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.db.QueryContext(ctx, `
		SELECT board_id, channel_index, global_id FROM channel_map`,
	)
	if err != nil {
		return fmt.Errorf("format: could not query channel_map: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			boardID, chanIdx int
			globalID         int16
		)
		err = rows.Scan(&boardID, &chanIdx, &globalID)
		if err != nil {
			return fmt.Errorf("format: could not scan channel_map row: %w", err)
		}
		tbl.SetChannel(boardID, chanIdx, globalID)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("format: error iterating channel_map rows: %w", err)
	}
	return nil
}
