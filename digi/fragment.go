// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package digi

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

// FixedHeaderSize is the size, in bytes, of a Fragment's fixed header. The
// payload that follows is always exactly Builder.PayloadBytes bytes, zero
// padded past the last real sample.
const FixedHeaderSize = 24

// Fragment is one on-wire slice of a waveform: a fixed 24-byte header
// followed by a fixed-size payload.
type Fragment struct {
	TimeNs              int64
	SamplesThisFragment int32
	SampleWidthNs       int16
	ChannelGlobalID     int16
	SamplesInPulse      int32
	FragmentIndex       int16
	Baseline            int16
	Payload             []byte
}

// MarshalBinary renders the fragment as FixedHeaderSize+len(Payload) bytes,
// little-endian.
func (f Fragment) MarshalBinary() ([]byte, error) {
	buf := make([]byte, FixedHeaderSize+len(f.Payload))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(f.TimeNs))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(f.SamplesThisFragment))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(f.SampleWidthNs))
	binary.LittleEndian.PutUint16(buf[14:16], uint16(f.ChannelGlobalID))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(f.SamplesInPulse))
	binary.LittleEndian.PutUint16(buf[20:22], uint16(f.FragmentIndex))
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Baseline))
	copy(buf[24:], f.Payload)
	return buf, nil
}

// UnmarshalBinary parses a single fragment out of data, which must be at
// least FixedHeaderSize bytes. Anything past the header is taken verbatim
// as the payload.
func (f *Fragment) UnmarshalBinary(data []byte) error {
	if len(data) < FixedHeaderSize {
		return xerrors.Errorf("digi: fragment too short: %d bytes", len(data))
	}
	f.TimeNs = int64(binary.LittleEndian.Uint64(data[0:8]))
	f.SamplesThisFragment = int32(binary.LittleEndian.Uint32(data[8:12]))
	f.SampleWidthNs = int16(binary.LittleEndian.Uint16(data[12:14]))
	f.ChannelGlobalID = int16(binary.LittleEndian.Uint16(data[14:16]))
	f.SamplesInPulse = int32(binary.LittleEndian.Uint32(data[16:20]))
	f.FragmentIndex = int16(binary.LittleEndian.Uint16(data[20:22]))
	f.Baseline = int16(binary.LittleEndian.Uint16(data[22:24]))
	f.Payload = append([]byte(nil), data[24:]...)
	return nil
}

// Builder slices Records into fixed-size Fragments.
type Builder struct {
	// PayloadBytes is the fixed payload size (P in the wire format). Every
	// Fragment this Builder produces is exactly FixedHeaderSize+PayloadBytes
	// bytes once marshaled.
	PayloadBytes int
}

// NewBuilder returns a Builder with the given payload size. A payloadBytes
// of 0 defaults to 220, matching the archival writer's historical default.
func NewBuilder(payloadBytes int) *Builder {
	if payloadBytes <= 0 {
		payloadBytes = 220
	}
	return &Builder{PayloadBytes: payloadBytes}
}

// samplesPerFragment is the number of i16 samples that fit in one payload.
func (b *Builder) samplesPerFragment() int32 {
	return int32(b.PayloadBytes / 2)
}

// Split slices rec's waveform into fragments of at most PayloadBytes/2
// samples each, per the fragment builder rule: fragment i spans samples
// [i*P/2, min((i+1)*P/2, samples_in_pulse)) with
// fragment_time_ns = time_ns + i*(P/2)*ns_per_sample.
func (b *Builder) Split(rec Record, sampleWidthNs int16) []Fragment {
	perFrag := b.samplesPerFragment()
	if perFrag <= 0 || len(rec.Samples) == 0 {
		return nil
	}

	n := int32(len(rec.Samples))
	nFrags := (n + perFrag - 1) / perFrag
	frags := make([]Fragment, nFrags)

	for i := int32(0); i < nFrags; i++ {
		lo := i * perFrag
		hi := lo + perFrag
		if hi > n {
			hi = n
		}
		thisN := hi - lo

		payload := make([]byte, b.PayloadBytes)
		for s := int32(0); s < thisN; s++ {
			v := uint16(rec.Samples[lo+s])
			payload[2*s] = byte(v)
			payload[2*s+1] = byte(v >> 8)
		}

		frags[i] = Fragment{
			TimeNs:              rec.TimeNs + int64(i)*int64(perFrag)*int64(sampleWidthNs),
			SamplesThisFragment: thisN,
			SampleWidthNs:       sampleWidthNs,
			ChannelGlobalID:     rec.Channel,
			SamplesInPulse:      rec.SamplesInPulse,
			FragmentIndex:       int16(i),
			Baseline:            rec.Baseline,
			Payload:             payload,
		}
	}

	return frags
}

// Deadtime returns the artificial-deadtime fragment the parser emits when
// it loses sync with a board's stream: channel DeadtimeChannel,
// samples_this_fragment and samples_in_pulse both half the payload width,
// fragment_index 0, every other numeric field zero, payload all zero.
func (b *Builder) Deadtime(timeNs int64) Fragment {
	half := b.samplesPerFragment()
	return Fragment{
		TimeNs:              timeNs,
		SamplesThisFragment: half,
		ChannelGlobalID:     DeadtimeChannel,
		SamplesInPulse:      half,
		FragmentIndex:       0,
		Payload:             make([]byte, b.PayloadBytes),
	}
}
