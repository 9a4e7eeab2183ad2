// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package digi

import (
	"math/bits"

	"golang.org/x/xerrors"

	"github.com/go-lpc/strax/format"
)

const (
	eventHeaderMarker = 0xA
	eventHeaderWords  = 4
	boardFailBit      = 1 << 26
	sentinelWord      = 0xFFFFFFFF
)

// Record is one decoded (channel, time, waveform) observation, before
// fragmentation. Samples holds two samples per payload word of the
// channel. Deadtime markers are not Records: Decode reports them through
// its onDeadtime callback.
type Record struct {
	BoardID        int
	Channel        int16
	TimeNs         int64
	SamplesInPulse int32
	Baseline       int16
	Samples        []int16
}

// Stats accumulates the counters a single Decode call produces: per-board
// failure counts and per-channel byte totals, both of which the caller is
// expected to fold into its own shared, mutex-guarded accumulators.
type Stats struct {
	BoardFails      int
	EventsProcessed int
	DataPerChannel  map[int16]int64 // channel -> bytes (2 * samples)
}

func newStats() Stats {
	return Stats{DataPerChannel: make(map[int16]int64)}
}

// Decoder walks DataPacket buffers and emits the Records and deadtime
// markers they contain. A Decoder is not safe for concurrent use; each
// worker owns its own.
type Decoder struct {
	Table *format.Table

	// OnGarble, if set, is called with a short description whenever the
	// parser detects in-stream corruption. It is purely informational;
	// garble recovery happens regardless of whether it is set.
	OnGarble func(boardID int, msg string)
}

// Decode walks one packet and emits every channel record and deadtime
// marker it contains, via onRecord/onDeadtime. It returns once the packet
// is fully walked, or immediately on ErrUnknownChannel/ErrUnknownFormat,
// both of which are fatal and must stop the worker that owns this
// Decoder.
func (d *Decoder) Decode(pkt *DataPacket, onRecord func(Record), onDeadtime func(boardID int, timeNs int64)) (Stats, error) {
	stats := newStats()

	fmtEntry, ok := d.Table.Entry(pkt.BoardID)
	if !ok {
		return stats, xerrors.Errorf("digi: board %d: %w", pkt.BoardID, ErrUnknownFormat)
	}

	words := pkt.Words
	total := uint32(len(words))
	clk := newClockState(pkt.ClockCounter)

	var idx uint32
	for idx < total && words[idx] != sentinelWord {
		if words[idx]>>28 != eventHeaderMarker {
			idx++
			continue
		}

		if total-idx < eventHeaderWords {
			// truncated tail: not enough words left for a full event
			// header, nothing more to decode.
			break
		}

		wordsInEvent := words[idx] & 0xFFFFFFF
		if total-idx < wordsInEvent {
			wordsInEvent = total - idx
		}

		channelMask := words[idx+1] & 0xFF
		if fmtEntry.ChannelMaskMSBIdx == 2 {
			channelMask = ((words[idx+2]>>24)&0xFF)<<8 | (words[idx+1] & 0xFF)
		}
		boardFail := words[idx+1]&boardFailBit != 0
		eventTime := words[idx+3]
		stats.EventsProcessed++

		if boardFail {
			stats.BoardFails++
			idx += eventHeaderWords
			continue
		}

		eventStart := idx
		idx += eventHeaderWords

		nChannels := bits.OnesCount32(channelMask)
		if nChannels == 0 {
			continue
		}

	channelLoop:
		for channel := 0; channel < maxChannels; channel++ {
			if channelMask&(1<<uint(channel)) == 0 {
				continue
			}

			var (
				channelWords   uint32
				channelTime    = eventTime
				channelTimeMSB uint32
				baseline       uint16
			)

			if fmtEntry.ChannelHeaderWords > 0 {
				claimed := words[idx] & 0x7FFFFF
				available := wordsInEvent - (idx - eventStart)
				channelWords = claimed
				if channelWords > available {
					channelWords = available
				}
				if channelWords < claimed {
					d.garble(pkt.BoardID, "garbled channel header: claimed more words than remain in event")
					break channelLoop
				}
				if channelWords <= uint32(fmtEntry.ChannelHeaderWords) {
					idx += uint32(fmtEntry.ChannelHeaderWords) - channelWords
					continue
				}
				channelWords -= uint32(fmtEntry.ChannelHeaderWords)
				channelTime = words[idx+1]

				if fmtEntry.ChannelTimeMSBIdx == 2 {
					channelTimeMSB = words[idx+2] & 0xFFFF
					baseline = uint16((words[idx+2] >> 16) & 0x3FFF)
				}

				idx += uint32(fmtEntry.ChannelHeaderWords)
			} else {
				denom := nChannels
				avail := int32(wordsInEvent) - eventHeaderWords
				if avail < 0 {
					avail = 0
				}
				channelWords = uint32(avail) / uint32(denom)
			}

			if !fmtEntry.WideClock() {
				clk.observe(channel, channelTime, pkt.HeaderTime)
			}

			limit := eventStart + wordsInEvent
			whoops := false
			for w := uint32(0); w < channelWords; w++ {
				if idx+w >= limit || idx+w >= total || words[idx+w]>>28 == eventHeaderMarker {
					whoops = true
					break
				}
			}

			var timeNs int64
			if fmtEntry.WideClock() {
				timeNs = fmtEntry.NsPerClk * int64(uint64(channelTimeMSB)<<32|uint64(channelTime))
			} else {
				rollover := clk.counters[channel]
				timeNs = fmtEntry.NsPerClk * int64(uint64(rollover)<<31|uint64(channelTime))
			}

			if whoops {
				d.garble(pkt.BoardID, "channel payload corrupted mid-stream")
				if onDeadtime != nil {
					onDeadtime(pkt.BoardID, timeNs)
				}
				break channelLoop
			}

			globalID, ok := d.Table.Channel(pkt.BoardID, channel)
			if !ok {
				return stats, xerrors.Errorf(
					"digi: board %d channel %d: %w", pkt.BoardID, channel, ErrUnknownChannel,
				)
			}

			samplesInPulse := int32(channelWords) * 2
			stats.DataPerChannel[globalID] += int64(samplesInPulse) * 2

			if onRecord != nil {
				samples := wordsAsSamples(words, idx, channelWords)
				onRecord(Record{
					BoardID:        pkt.BoardID,
					Channel:        globalID,
					TimeNs:         timeNs,
					SamplesInPulse: samplesInPulse,
					Baseline:       int16(baseline),
					Samples:        samples,
				})
			}

			idx += channelWords
		}
	}

	return stats, nil
}

func (d *Decoder) garble(boardID int, msg string) {
	if d.OnGarble != nil {
		d.OnGarble(boardID, msg)
	}
}

// wordsAsSamples reinterprets n consecutive u32 words starting at idx as
// 2*n little-endian i16 samples, without mutating the underlying packet.
func wordsAsSamples(words []uint32, idx, n uint32) []int16 {
	out := make([]int16, 2*n)
	for i := uint32(0); i < n; i++ {
		w := words[idx+i]
		out[2*i] = int16(w & 0xFFFF)
		out[2*i+1] = int16(w >> 16)
	}
	return out
}
