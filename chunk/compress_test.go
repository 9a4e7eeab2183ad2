// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chunk

import (
	"bytes"
	"testing"
)

func TestLZ4CompressorRoundtrip(t *testing.T) {
	src := bytes.Repeat([]byte("waveform payload bytes"), 50)

	c := LZ4Compressor{}
	compressed, err := c.Compress(src)
	if err != nil {
		t.Fatalf("could not compress: %+v", err)
	}
	got, err := DecompressLZ4(compressed)
	if err != nil {
		t.Fatalf("could not decompress: %+v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("lz4 roundtrip mismatch")
	}
}

func TestBloscCompressorRoundtrip(t *testing.T) {
	src := bytes.Repeat([]byte("waveform payload bytes"), 50)

	c := NewBloscCompressor()
	compressed, err := c.Compress(src)
	if err != nil {
		t.Fatalf("could not compress: %+v", err)
	}
	got, err := DecompressBlosc(compressed)
	if err != nil {
		t.Fatalf("could not decompress: %+v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("blosc roundtrip mismatch")
	}
}

func TestCompressorNames(t *testing.T) {
	if got, want := (LZ4Compressor{}).Name(), "lz4"; got != want {
		t.Fatalf("invalid name: got=%q, want=%q", got, want)
	}
	if got, want := NewBloscCompressor().Name(), "blosc"; got != want {
		t.Fatalf("invalid name: got=%q, want=%q", got, want)
	}
}
