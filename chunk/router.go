// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package chunk partitions marshaled fragment bytes by time interval,
// replicates boundary fragments into neighboring chunks, and writes
// finalized chunks out as compressed, atomically-renamed files.
package chunk // import "github.com/go-lpc/strax/chunk"

import "math"

// Config holds the time-partitioning parameters shared by a Router and
// the Writer that drains it.
type Config struct {
	ChunkLength  int64 // ns
	ChunkOverlap int64 // ns
	IDWidth      int   // zero-padded width of a chunk id rendered as a file name
}

// DefaultConfig matches the archival writer's historical defaults: 5 s
// chunks with a 0.5 s overlap, ids rendered as 6-digit decimal strings.
func DefaultConfig() Config {
	return Config{ChunkLength: 5_000_000_000, ChunkOverlap: 500_000_000, IDWidth: 6}
}

func (c Config) fullChunkLength() int64 {
	return c.ChunkLength + c.ChunkOverlap
}

// buffer holds the three append-only byte buffers a chunk id can own: the
// primary buffer, and the pre/post twins fed by boundary replication from
// its neighbors.
type buffer struct {
	primary []byte
	pre     []byte
	post    []byte
}

func (b *buffer) empty() bool {
	return b == nil || (len(b.primary) == 0 && len(b.pre) == 0 && len(b.post) == 0)
}

// Router maps fragment timestamps to chunk ids and accumulates their raw
// bytes into per-chunk buffers, replicating boundary fragments into the
// neighboring chunk's pre/post twin per the overlap rule. A Router is
// owned by a single worker and is not safe for concurrent use.
type Router struct {
	cfg     Config
	chunks  map[int64]*buffer
	lastMin int64
}

// NewRouter returns a Router governed by cfg.
func NewRouter(cfg Config) *Router {
	r := &Router{cfg: cfg, chunks: make(map[int64]*buffer)}
	r.BeginPacket()
	return r
}

// ChunkID returns the chunk id a timestamp falls into.
func (r *Router) ChunkID(timeNs int64) int64 {
	return timeNs / r.cfg.fullChunkLength()
}

// BeginPacket resets the router's watermark tracking ahead of routing one
// packet's worth of fragments. Call it once per packet, before the first
// Route call for that packet.
func (r *Router) BeginPacket() {
	r.lastMin = math.MaxInt64
}

// Watermark returns the smallest chunk id any fragment routed since the
// last BeginPacket call was routed to. It is math.MaxInt64 if Route was
// never called since BeginPacket.
func (r *Router) Watermark() int64 {
	return r.lastMin
}

func (r *Router) buf(id int64) *buffer {
	b, ok := r.chunks[id]
	if !ok {
		b = &buffer{}
		r.chunks[id] = b
	}
	return b
}

// Route appends raw (a marshaled fragment) to the primary buffer of the
// chunk timeNs falls into, and replicates it into chunk k's _post twin
// and chunk k+1's _pre twin when the fragment falls within ChunkOverlap
// of the chunk boundary. It returns the primary chunk id it was routed
// to.
func (r *Router) Route(raw []byte, timeNs int64) int64 {
	full := r.cfg.fullChunkLength()
	id := r.ChunkID(timeNs)

	r.buf(id).primary = append(r.buf(id).primary, raw...)

	if (id+1)*full-timeNs < r.cfg.ChunkOverlap {
		r.buf(id).post = append(r.buf(id).post, raw...)
		r.buf(id + 1).pre = append(r.buf(id+1).pre, raw...)
	}

	if id < r.lastMin {
		r.lastMin = id
	}
	return id
}
