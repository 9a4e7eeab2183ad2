// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chunk

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
	"golang.org/x/xerrors"

	"github.com/go-lpc/strax/internal/blosc"
)

// Compressor turns a chunk buffer's raw fragment bytes into the bytes
// that land on disk.
type Compressor interface {
	Name() string
	Compress(data []byte) ([]byte, error)
}

// LZ4Compressor wraps the lz4 frame format with 256 KB blocks, no block
// checksum, no content checksum and no autoflush. The frame writer emits
// independent blocks; linked blocks are not used.
type LZ4Compressor struct{}

func (LZ4Compressor) Name() string { return "lz4" }

func (LZ4Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if err := w.Apply(
		lz4.BlockSizeOption(lz4.Block256Kb),
		lz4.BlockChecksumOption(false),
		lz4.ChecksumOption(false),
	); err != nil {
		return nil, xerrors.Errorf("chunk: could not configure lz4 writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, xerrors.Errorf("chunk: could not lz4-compress chunk: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, xerrors.Errorf("chunk: could not close lz4 writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressLZ4 reverses LZ4Compressor.Compress.
func DecompressLZ4(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, xerrors.Errorf("chunk: could not lz4-decompress chunk: %w", err)
	}
	return out, nil
}

// BloscCompressor wraps the blosc-style container of internal/blosc as
// the alternative to plain lz4: typesize 1 (fragment bytes are untyped),
// so the byte shuffle is the identity and the shuffle flag is not set,
// and 2 threads recorded in the codec. The container has no compression
// level setting: blocks go through lz4's default block compressor.
type BloscCompressor struct {
	codec *blosc.Codec
}

// NewBloscCompressor returns a BloscCompressor configured the way the
// archival writer has always configured blosc.
func NewBloscCompressor() *BloscCompressor {
	return &BloscCompressor{codec: blosc.New(1, 2)}
}

func (c *BloscCompressor) Name() string { return "blosc" }

func (c *BloscCompressor) Compress(data []byte) ([]byte, error) {
	out, err := c.codec.Compress(data)
	if err != nil {
		return nil, xerrors.Errorf("chunk: could not blosc-compress chunk: %w", err)
	}
	return out, nil
}

// DecompressBlosc reverses BloscCompressor.Compress.
func DecompressBlosc(data []byte) ([]byte, error) {
	out, err := blosc.New(1, 2).Decompress(data)
	if err != nil {
		return nil, xerrors.Errorf("chunk: could not blosc-decompress chunk: %w", err)
	}
	return out, nil
}
