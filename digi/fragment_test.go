// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package digi

import (
	"bytes"
	"reflect"
	"testing"
)

func TestFragmentMarshalRoundtrip(t *testing.T) {
	want := Fragment{
		TimeNs:              123456789,
		SamplesThisFragment: 10,
		SampleWidthNs:       10,
		ChannelGlobalID:     42,
		SamplesInPulse:      30,
		FragmentIndex:       1,
		Baseline:            1600,
		Payload:             bytes.Repeat([]byte{0xAB}, 220),
	}

	raw, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("could not marshal fragment: %+v", err)
	}
	if got, want := len(raw), FixedHeaderSize+220; got != want {
		t.Fatalf("invalid wire size: got=%d, want=%d", got, want)
	}

	var got Fragment
	if err := got.UnmarshalBinary(raw); err != nil {
		t.Fatalf("could not unmarshal fragment: %+v", err)
	}
	if !reflect.DeepEqual(got, want) {
		if !bytes.Equal(got.Payload, want.Payload) {
			t.Fatalf("invalid payload roundtrip")
		}
		got.Payload, want.Payload = nil, nil
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid roundtrip: got=%+v, want=%+v", got, want)
		}
	}
}

func TestFragmentUnmarshalTooShort(t *testing.T) {
	var f Fragment
	if err := f.UnmarshalBinary(make([]byte, 10)); err == nil {
		t.Fatalf("expected error unmarshaling short buffer")
	}
}

func TestBuilderSplitExactMultiple(t *testing.T) {
	b := NewBuilder(4) // 2 samples per fragment
	rec := Record{
		Channel:        7,
		TimeNs:         1000,
		SamplesInPulse: 4,
		Samples:        []int16{1, 2, 3, 4},
	}

	frags := b.Split(rec, 10)
	if got, want := len(frags), 2; got != want {
		t.Fatalf("invalid fragment count: got=%d, want=%d", got, want)
	}
	if got, want := frags[0].TimeNs, int64(1000); got != want {
		t.Fatalf("invalid fragment[0] time: got=%d, want=%d", got, want)
	}
	if got, want := frags[1].TimeNs, int64(1020); got != want {
		t.Fatalf("invalid fragment[1] time: got=%d, want=%d", got, want)
	}
	for i, f := range frags {
		if got, want := f.FragmentIndex, int16(i); got != want {
			t.Fatalf("invalid fragment[%d] index: got=%d, want=%d", i, got, want)
		}
		if got, want := f.SamplesThisFragment, int32(2); got != want {
			t.Fatalf("invalid fragment[%d] sample count: got=%d, want=%d", i, got, want)
		}
		if got, want := f.SamplesInPulse, int32(4); got != want {
			t.Fatalf("invalid fragment[%d] samples-in-pulse: got=%d, want=%d", i, got, want)
		}
	}
}

func TestBuilderSplitPartialTail(t *testing.T) {
	b := NewBuilder(220) // 110 samples per fragment
	rec := Record{
		Channel:        1,
		TimeNs:         0,
		SamplesInPulse: 300,
		Samples:        make([]int16, 300),
	}

	frags := b.Split(rec, 10)
	if got, want := len(frags), 3; got != want {
		t.Fatalf("invalid fragment count: got=%d, want=%d", got, want)
	}
	sizes := []int32{110, 110, 80}
	var total int32
	for i, f := range frags {
		if got, want := f.SamplesThisFragment, sizes[i]; got != want {
			t.Fatalf("invalid fragment[%d] size: got=%d, want=%d", i, got, want)
		}
		total += f.SamplesThisFragment
		if got, want := len(f.Payload), 220; got != want {
			t.Fatalf("invalid fragment[%d] payload size: got=%d, want=%d", i, got, want)
		}
	}
	if total != rec.SamplesInPulse {
		t.Fatalf("fragment sizes do not sum to samples-in-pulse: got=%d, want=%d", total, rec.SamplesInPulse)
	}
}

func TestBuilderDeadtime(t *testing.T) {
	b := NewBuilder(220)
	f := b.Deadtime(5000)

	if got, want := f.ChannelGlobalID, int16(DeadtimeChannel); got != want {
		t.Fatalf("invalid deadtime channel: got=%d, want=%d", got, want)
	}
	if got, want := f.SamplesThisFragment, int32(110); got != want {
		t.Fatalf("invalid deadtime samples-this-fragment: got=%d, want=%d", got, want)
	}
	if got, want := f.SamplesInPulse, int32(110); got != want {
		t.Fatalf("invalid deadtime samples-in-pulse: got=%d, want=%d", got, want)
	}
	if f.FragmentIndex != 0 {
		t.Fatalf("invalid deadtime fragment index: got=%d, want=0", f.FragmentIndex)
	}
	for _, b := range f.Payload {
		if b != 0 {
			t.Fatalf("expected all-zero deadtime payload")
		}
	}
}
