// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package digi

// maxChannels is hardcoded to accommodate boards with up to 16 channels.
const maxChannels = 16

// noObservationYet marks a channel as not yet seen within the current
// packet.
const noObservationYet = 0xFFFFFFFF

// clockState tracks, for the lifetime of one packet, the observed
// hardware-clock rollover count of every channel on a board whose clock
// is narrow and must be tracked in software.
type clockState struct {
	counters [maxChannels]uint32
	lastSeen [maxChannels]uint32
}

func newClockState(counter uint32) *clockState {
	cs := &clockState{}
	for i := range cs.counters {
		cs.counters[i] = counter
	}
	for i := range cs.lastSeen {
		cs.lastSeen[i] = noObservationYet
	}
	return cs
}

// observe applies the rollover-disambiguation rules to one channel's raw
// clock reading and returns the adjusted rollover counter to use for this
// reading.
//
// The two epoch-disambiguation adjustments only ever fire on the first
// observation of a channel within a packet; the monotonicity bump only
// ever fires on later observations. The two sets of conditions are
// mutually exclusive by construction, so there is no ordering ambiguity
// between them.
func (cs *clockState) observe(channel int, channelTime, headerTime uint32) uint32 {
	first := cs.lastSeen[channel] == noObservationYet
	switch {
	case first && channelTime > 1_500_000_000 && headerTime < 500_000_000 && cs.counters[channel] > 0:
		cs.counters[channel]--
	case first && channelTime < 500_000_000 && headerTime > 1_500_000_000:
		cs.counters[channel]++
	case !first && channelTime < cs.lastSeen[channel]:
		cs.counters[channel]++
	}
	cs.lastSeen[channel] = channelTime
	return cs.counters[channel]
}
