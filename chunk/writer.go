// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chunk

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/xerrors"
)

// Writer drains a Router's chunk buffers to disk: it compresses each
// eligible buffer, writes it into a "<key>_temp" staging directory, then
// atomically renames it into its final "<key>" directory, and keeps the
// on-disk chunk directory listing dense via placeholder synthesis.
type Writer struct {
	router     *Router
	cfg        Config
	outputDir  string
	hostname   string
	workerID   string
	compressor Compressor

	missingVerified int64
	compressionTime time.Duration
}

// NewWriter returns a Writer draining router into outputDir, naming its
// files "<hostname>_<workerID>" and compressing chunk buffers with
// compressor.
func NewWriter(router *Router, outputDir, hostname, workerID string, compressor Compressor) *Writer {
	return &Writer{
		router:     router,
		cfg:        router.cfg,
		outputDir:  outputDir,
		hostname:   hostname,
		workerID:   workerID,
		compressor: compressor,
	}
}

// CompressionTime returns the cumulative time spent inside Compressor.Compress
// across every Finalize call so far.
func (w *Writer) CompressionTime() time.Duration {
	return w.compressionTime
}

func (w *Writer) key(id int64) string {
	return fmt.Sprintf("%0*d", w.cfg.IDWidth, id)
}

func (w *Writer) filename() string {
	return w.hostname + "_" + w.workerID
}

// Finalize drains every chunk buffer eligible under the finalize
// predicate: a chunk older than the router's watermark by at least two
// (or every remaining chunk, if end is true) is guaranteed to receive no
// further fragments and is safe to compress and write out. Call it once
// after every packet the owning worker processes, with end set only on
// the worker's final, shutdown pass.
func (w *Writer) Finalize(end bool) error {
	watermark := w.router.Watermark()

	ids := make([]int64, 0, len(w.router.chunks))
	for id := range w.router.chunks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	maxFinalized := int64(-1)
	var ferr error
	for _, id := range ids {
		if !end && id >= watermark-1 {
			continue
		}
		// A write failure drops this chunk's buffer rather than aborting
		// the whole pass: the original writer's own file I/O is
		// unchecked, and one bad directory should not stall every other
		// chunk behind it.
		if err := w.finalizeOne(id, w.router.chunks[id]); err != nil && ferr == nil {
			ferr = err
		}
		delete(w.router.chunks, id)
		if id > maxFinalized {
			maxFinalized = id
		}
	}

	// Placeholders fill the gap up to, but not including, the
	// just-finalized id: that one already has whichever of
	// primary/pre/post it really got, and shouldn't be densified with
	// synthetic siblings it never earned.
	if maxFinalized > w.missingVerified {
		if err := w.synthesizePlaceholders(maxFinalized); err != nil {
			return err
		}
	}

	if end {
		if err := w.writeEndSentinel(); err != nil && ferr == nil {
			ferr = err
		}
	}
	return ferr
}

func (w *Writer) finalizeOne(id int64, b *buffer) error {
	if b == nil {
		return nil
	}
	if len(b.primary) > 0 {
		if err := w.writePart(w.key(id), b.primary); err != nil {
			return err
		}
	}
	if len(b.pre) > 0 {
		if err := w.writePart(w.key(id)+"_pre", b.pre); err != nil {
			return err
		}
	}
	if len(b.post) > 0 {
		if err := w.writePart(w.key(id)+"_post", b.post); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writePart(key string, data []byte) error {
	start := time.Now()
	compressed, err := w.compressor.Compress(data)
	w.compressionTime += time.Since(start)
	if err != nil {
		return xerrors.Errorf("chunk: could not compress %s: %w", key, err)
	}

	tempDir := filepath.Join(w.outputDir, key+"_temp")
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return xerrors.Errorf("chunk: could not create %s: %w", tempDir, err)
	}
	tempPath := filepath.Join(tempDir, w.filename())
	if err := os.WriteFile(tempPath, compressed, 0644); err != nil {
		return xerrors.Errorf("chunk: could not write %s: %w", tempPath, err)
	}

	finalDir := filepath.Join(w.outputDir, key)
	if err := os.MkdirAll(finalDir, 0755); err != nil {
		return xerrors.Errorf("chunk: could not create %s: %w", finalDir, err)
	}
	finalPath := filepath.Join(finalDir, w.filename())
	if err := os.Rename(tempPath, finalPath); err != nil {
		return xerrors.Errorf("chunk: could not rename %s to %s: %w", tempPath, finalPath, err)
	}
	return nil
}

// synthesizePlaceholders advances the missing_verified cursor to n,
// creating an empty placeholder file for every (primary, pre, post)
// chunk directory entry in [missingVerified, n) that has no file on disk
// yet, so downstream readers always see a dense chunk directory.
func (w *Writer) synthesizePlaceholders(n int64) error {
	for x := w.missingVerified; x < n; x++ {
		if err := w.ensurePlaceholder(w.key(x)); err != nil {
			return err
		}
		if x != 0 {
			if err := w.ensurePlaceholder(w.key(x) + "_pre"); err != nil {
				return err
			}
		}
		if err := w.ensurePlaceholder(w.key(x) + "_post"); err != nil {
			return err
		}
	}
	w.missingVerified = n
	return nil
}

func (w *Writer) ensurePlaceholder(key string) error {
	dir := filepath.Join(w.outputDir, key)
	path := filepath.Join(dir, w.filename())

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return xerrors.Errorf("chunk: could not create placeholder dir %s: %w", dir, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return xerrors.Errorf("chunk: could not create placeholder %s: %w", path, err)
	}
	return f.Close()
}

// endSentinelDir is the directory name the end-of-run sentinel lives
// under, one per output directory regardless of chunk id.
const endSentinelDir = "THE_END"

func (w *Writer) writeEndSentinel() error {
	dir := filepath.Join(w.outputDir, endSentinelDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return xerrors.Errorf("chunk: could not create %s: %w", dir, err)
	}
	path := filepath.Join(dir, w.filename())
	if err := os.WriteFile(path, nil, 0644); err != nil {
		return xerrors.Errorf("chunk: could not write %s: %w", path, err)
	}
	return nil
}
