// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package format holds the per-board-ID digitizer format table: field
// widths, clock parameters, and the channel map used to decode raw event
// buffers into waveform records.
package format // import "github.com/go-lpc/strax/format"

import "sync"

// Entry describes the on-wire layout and clock parameters used by one
// board ID's firmware.
type Entry struct {
	// ChannelHeaderWords is 0 for "default" firmware, where all channels
	// of an event share one header and are the same size, and >0 for
	// "DPP-DAW" firmware, where each channel carries its own sub-header.
	ChannelHeaderWords int

	// ChannelMaskMSBIdx is -1 when the channel mask fits in the 8 low
	// bits of event-header word 1, or 2 when word 2 supplies the
	// high bits of an extended mask.
	ChannelMaskMSBIdx int

	// ChannelTimeMSBIdx is 2 when the channel sub-header carries a wide
	// (16-bit MSB + 14-bit baseline) clock at word offset 2; any other
	// value means the channel uses the narrow, software-tracked clock.
	ChannelTimeMSBIdx int

	// NsPerClk converts hardware clock ticks to nanoseconds.
	NsPerClk int64

	// NsPerSample is the sample width, in nanoseconds.
	NsPerSample int64
}

// WideClock reports whether entries of this kind carry the clock's MSB
// directly in the channel sub-header, rather than needing rollover
// tracking.
func (e Entry) WideClock() bool {
	return e.ChannelTimeMSBIdx == 2
}

// DefaultFirmware returns the format entry for "default" firmware, where
// an event header describes all enabled channels at once and channels
// carry no sub-header of their own.
func DefaultFirmware(nsPerClk, nsPerSample int64) Entry {
	return Entry{
		ChannelHeaderWords: 0,
		ChannelMaskMSBIdx:  -1,
		ChannelTimeMSBIdx:  -1,
		NsPerClk:           nsPerClk,
		NsPerSample:        nsPerSample,
	}
}

// DPPDAWFirmware returns the format entry for CAEN V1724-style DPP-DAW
// firmware: a 2-word per-channel sub-header, narrow (software-tracked)
// clock, 10ns ticks and 10ns samples.
func DPPDAWFirmware() Entry {
	return Entry{
		ChannelHeaderWords: 2,
		ChannelMaskMSBIdx:  -1,
		ChannelTimeMSBIdx:  -1,
		NsPerClk:           10,
		NsPerSample:        10,
	}
}

type channelKey struct {
	boardID int
	channel int
}

// Table holds the format entry and channel map for every known board ID.
// A Table is safe for concurrent use: the event parser reads it from
// multiple worker goroutines while it may still be extended by a
// configuration reload.
type Table struct {
	mu       sync.RWMutex
	entries  map[int]Entry
	channels map[channelKey]int16
}

// NewTable returns an empty, ready-to-use Table.
func NewTable() *Table {
	return &Table{
		entries:  make(map[int]Entry),
		channels: make(map[channelKey]int16),
	}
}

// Set records the format entry for boardID.
func (t *Table) Set(boardID int, e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[boardID] = e
}

// Entry returns the format entry for boardID, and whether one is known.
func (t *Table) Entry(boardID int) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[boardID]
	return e, ok
}

// SetChannel records the global channel id for (boardID, channelIndex).
func (t *Table) SetChannel(boardID, channelIndex int, globalID int16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channels[channelKey{boardID, channelIndex}] = globalID
}

// Channel returns the global channel id for (boardID, channelIndex), and
// whether the mapping is known. A missing mapping is a fatal condition
// for the event parser: see digi.ErrUnknownChannel.
func (t *Table) Channel(boardID, channelIndex int) (int16, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.channels[channelKey{boardID, channelIndex}]
	return id, ok
}
