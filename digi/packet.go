// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package digi decodes raw digitizer event buffers into per-channel
// waveform records, reconstructs the 64-bit event timestamp from the
// board's narrow hardware clock, and slices waveforms into fixed-size
// wire fragments.
package digi // import "github.com/go-lpc/strax/digi"

// DataPacket is a contiguous buffer of 32-bit little-endian words produced
// by one board over one readout. It is exclusively owned by the worker
// that dequeued it, and should be discarded once Decode returns.
type DataPacket struct {
	BoardID      int
	Words        []uint32
	ClockCounter uint32
	HeaderTime   uint32
}

// Source is the upstream packet queue contract. TryDequeue and
// TryDequeueBatch are both non-blocking: a caller that finds nothing
// available is expected to back off and retry.
type Source interface {
	TryDequeue() (*DataPacket, bool)
	TryDequeueBatch() ([]*DataPacket, bool)
}
