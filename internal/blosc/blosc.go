// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package blosc implements a blosc-style block container on top of an
// lz4 inner codec: a byte-shuffle pre-filter followed by block-wise lz4
// compression, the way the C blosc library composes its filters and
// codecs internally. The 16-byte header mirrors blosc's, but blocks are
// stored length-prefixed rather than behind blosc's block-offset table,
// so the output is read back with Decompress, not with the C library.
package blosc // import "github.com/go-lpc/strax/internal/blosc"

import (
	"encoding/binary"

	"github.com/pierrec/lz4/v4"
	"golang.org/x/xerrors"
)

const (
	version     = 2
	versionLZ4  = 1
	headerSize  = 16
	flagShuffle = 1 << 0

	// DefaultBlockSize matches the block size the archival writer's blosc
	// calls use in practice; it is independent of the fragment payload
	// size, which is always much smaller.
	DefaultBlockSize = 1 << 16
)

// Codec compresses and decompresses buffers using a blosc-style container:
// a typesize-wide byte shuffle followed by block-wise lz4 compression.
// Threads is carried for parity with the C library's call signature but
// this implementation compresses blocks sequentially; Go's compiler and
// runtime make the extra goroutine bookkeeping not worth it at the buffer
// sizes chunk files reach.
type Codec struct {
	Typesize  int
	BlockSize int
	Threads   int
}

// New returns a Codec with the given typesize. A typesize of 1 makes the
// shuffle filter a no-op, which is the configuration the archival writer
// actually uses (waveform fragments are raw bytes, not typed arrays).
func New(typesize, threads int) *Codec {
	if typesize <= 0 {
		typesize = 1
	}
	if threads <= 0 {
		threads = 1
	}
	return &Codec{Typesize: typesize, BlockSize: DefaultBlockSize, Threads: threads}
}

func (c *Codec) blockSize() int {
	if c.BlockSize <= 0 {
		return DefaultBlockSize
	}
	return c.BlockSize
}

// Compress returns src packed into a blosc-style container: a 16-byte
// header followed by one or more (length-prefixed, shuffled, lz4
// compressed) blocks.
func (c *Codec) Compress(src []byte) ([]byte, error) {
	blockSize := c.blockSize()

	out := make([]byte, headerSize)
	out[0] = version
	out[1] = versionLZ4
	out[3] = byte(c.Typesize)
	if c.Typesize > 1 {
		out[2] |= flagShuffle
	}
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(src)))
	binary.LittleEndian.PutUint32(out[8:12], uint32(blockSize))

	var compressor lz4.Compressor
	dst := make([]byte, lz4.CompressBlockBound(blockSize))

	for off := 0; off < len(src); off += blockSize {
		end := off + blockSize
		if end > len(src) {
			end = len(src)
		}
		block := src[off:end]

		shuffled := shuffle(block, c.Typesize)

		n, err := compressor.CompressBlock(shuffled, dst)
		if err != nil {
			return nil, xerrors.Errorf("blosc: could not compress block: %w", err)
		}

		var lenPrefix [4]byte
		if n == 0 {
			// incompressible block: store it verbatim, flagged by a
			// negative-as-uint32 length so Decompress knows to skip lz4.
			binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(shuffled))|storedFlag)
			out = append(out, lenPrefix[:]...)
			out = append(out, shuffled...)
		} else {
			binary.LittleEndian.PutUint32(lenPrefix[:], uint32(n))
			out = append(out, lenPrefix[:]...)
			out = append(out, dst[:n]...)
		}
	}

	binary.LittleEndian.PutUint32(out[12:16], uint32(len(out)))
	return out, nil
}

// storedFlag marks a block-length prefix as carrying a verbatim
// (uncompressed) block rather than an lz4-compressed one.
const storedFlag = 1 << 31

// Decompress reverses Compress.
func (c *Codec) Decompress(src []byte) ([]byte, error) {
	if len(src) < headerSize {
		return nil, xerrors.Errorf("blosc: buffer too short: %d bytes", len(src))
	}
	typesize := int(src[3])
	nbytes := binary.LittleEndian.Uint32(src[4:8])
	blockSize := binary.LittleEndian.Uint32(src[8:12])

	out := make([]byte, 0, nbytes)
	body := src[headerSize:]

	for len(body) > 0 {
		if len(body) < 4 {
			return nil, xerrors.Errorf("blosc: truncated block length prefix")
		}
		raw := binary.LittleEndian.Uint32(body[:4])
		body = body[4:]

		stored := raw&storedFlag != 0
		length := raw &^ storedFlag

		if uint32(len(body)) < length {
			return nil, xerrors.Errorf("blosc: truncated block")
		}
		block := body[:length]
		body = body[length:]

		var shuffled []byte
		if stored {
			shuffled = block
		} else {
			dst := make([]byte, blockSize)
			n, err := lz4.UncompressBlock(block, dst)
			if err != nil {
				return nil, xerrors.Errorf("blosc: could not decompress block: %w", err)
			}
			shuffled = dst[:n]
		}

		out = append(out, unshuffle(shuffled, typesize)...)
	}

	return out, nil
}

// shuffle applies blosc's byte-shuffle filter: it transposes a block of
// typesize-wide elements so that all first bytes are contiguous, then all
// second bytes, and so on. With typesize==1 it is the identity.
func shuffle(data []byte, typesize int) []byte {
	if typesize <= 1 || len(data) < typesize {
		return append([]byte(nil), data...)
	}

	n := len(data) / typesize
	tail := data[n*typesize:]
	out := make([]byte, len(data))

	for i := 0; i < n; i++ {
		for b := 0; b < typesize; b++ {
			out[b*n+i] = data[i*typesize+b]
		}
	}
	copy(out[n*typesize:], tail)
	return out
}

// unshuffle reverses shuffle.
func unshuffle(data []byte, typesize int) []byte {
	if typesize <= 1 || len(data) < typesize {
		return append([]byte(nil), data...)
	}

	n := len(data) / typesize
	tail := data[n*typesize:]
	out := make([]byte, len(data))

	for i := 0; i < n; i++ {
		for b := 0; b < typesize; b++ {
			out[i*typesize+b] = data[b*n+i]
		}
	}
	copy(out[n*typesize:], tail)
	return out
}
