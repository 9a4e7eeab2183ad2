// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package worker runs the long-lived parser+router+writer loop that
// drains a packet source, decodes it into fragments, and finalizes those
// fragments to disk as compressed, chunked files.
package worker // import "github.com/go-lpc/strax/worker"

import (
	"context"
	"log"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-lpc/strax/chunk"
	"github.com/go-lpc/strax/digi"
	"github.com/go-lpc/strax/format"
)

// dequeuePollInterval is how long a worker sleeps before retrying a
// dequeue that came up empty.
const dequeuePollInterval = 10 * time.Microsecond

// Worker owns one parser+router+writer pipeline and drains one packet
// source. Multiple Workers may run concurrently, each over a disjoint
// set of board ids, sharing only the upstream source and the counter
// accumulators passed in via options.
type Worker struct {
	id  string
	src digi.Source

	table   *format.Table
	decoder *digi.Decoder
	builder *digi.Builder
	router  *chunk.Router
	writer  *chunk.Writer

	batched bool

	fails          *FailCounter
	dataPerChannel *DataPerChannel
	alerter        *Alerter
	log            *log.Logger

	compressor chunk.Compressor

	active    atomic.Bool
	forceQuit atomic.Bool

	stats Stats
}

// Option configures a Worker at construction time.
type Option func(*Worker)

// WithBatched selects the batched dequeue mode (TryDequeueBatch); the
// default is the single-packet mode (TryDequeue).
func WithBatched() Option {
	return func(w *Worker) { w.batched = true }
}

// WithPayloadBytes sets the fragment payload size (P); the default is
// the archival writer's historical 220 bytes.
func WithPayloadBytes(n int) Option {
	return func(w *Worker) { w.builder = digi.NewBuilder(n) }
}

// WithChunkConfig overrides the chunk length/overlap/id-width parameters;
// the default is chunk.DefaultConfig.
func WithChunkConfig(cfg chunk.Config) Option {
	return func(w *Worker) { w.router = chunk.NewRouter(cfg) }
}

// WithCompressor selects the writer's compressor; the default is
// chunk.LZ4Compressor.
func WithCompressor(c chunk.Compressor) Option {
	return func(w *Worker) { w.compressor = c }
}

// WithFailCounter shares a FailCounter across every worker constructed
// with the same instance, so a driver can drain one process-wide view.
func WithFailCounter(c *FailCounter) Option {
	return func(w *Worker) { w.fails = c }
}

// WithDataPerChannel shares a DataPerChannel counter the same way
// WithFailCounter does.
func WithDataPerChannel(c *DataPerChannel) Option {
	return func(w *Worker) { w.dataPerChannel = c }
}

// WithAlerter attaches an Alerter that mails a notice whenever the
// worker aborts on a fatal error.
func WithAlerter(a *Alerter) Option {
	return func(w *Worker) { w.alerter = a }
}

// WithLogger overrides the worker's logger; the default logs to
// os.Stdout with the worker id as prefix.
func WithLogger(l *log.Logger) Option {
	return func(w *Worker) { w.log = l }
}

// New returns a Worker identified by id, reading from src, decoding
// against table, and writing finalized chunks under outputDir named
// "<hostname>_<id>".
func New(id string, src digi.Source, table *format.Table, outputDir, hostname string, opts ...Option) *Worker {
	w := &Worker{
		id:      id,
		src:     src,
		table:   table,
		builder: digi.NewBuilder(0),
		router:  chunk.NewRouter(chunk.DefaultConfig()),
		stats:   newStats(),
	}
	w.decoder = &digi.Decoder{Table: table}

	for _, opt := range opts {
		opt(w)
	}

	if w.compressor == nil {
		w.compressor = chunk.LZ4Compressor{}
	}
	if w.fails == nil {
		w.fails = NewFailCounter()
	}
	if w.dataPerChannel == nil {
		w.dataPerChannel = NewDataPerChannel()
	}
	if w.log == nil {
		w.log = log.New(os.Stdout, "worker("+id+"): ", 0)
	}

	w.writer = chunk.NewWriter(w.router, outputDir, hostname, id, w.compressor)
	w.active.Store(true)
	return w
}

// ID returns the worker's id, used both in output file names and in log
// messages.
func (w *Worker) ID() string { return w.id }

// Stats returns a snapshot of the worker's wall-clock totals.
func (w *Worker) Stats() Stats {
	s := w.stats
	hist := make(map[int]int64, len(w.stats.BatchSizeHistogram))
	for k, v := range w.stats.BatchSizeHistogram {
		hist[k] = v
	}
	s.BatchSizeHistogram = hist
	s.CompressionTime = w.writer.CompressionTime()
	return s
}

// RequestStop begins a soft stop: the worker finishes its current step,
// then drains its source until empty (or until ForceQuit is called)
// before running a final writer pass.
func (w *Worker) RequestStop() { w.active.Store(false) }

// ForceQuit tells a draining worker to abandon the rest of its queue
// immediately rather than waiting for it to empty.
func (w *Worker) ForceQuit() { w.forceQuit.Store(true) }

// Run drains src until RequestStop is called or ctx is cancelled, then
// drains the remainder of the queue (unless ForceQuit fires first) and
// performs one final, end-of-run writer pass. It returns the first
// fatal decode error encountered, if any.
func (w *Worker) Run(ctx context.Context) error {
	for w.active.Load() {
		select {
		case <-ctx.Done():
			w.active.Store(false)
			continue
		default:
		}

		progressed, err := w.step()
		if err != nil {
			return w.abort(err)
		}
		if !progressed {
			time.Sleep(dequeuePollInterval)
		}
	}
	return w.shutdown()
}

func (w *Worker) abort(err error) error {
	w.log.Printf("fatal decode error, stopping: %+v", err)
	if w.alerter != nil {
		w.alerter.Fatal(w.id, err)
	}
	if werr := w.writer.Finalize(true); werr != nil {
		w.log.Printf("error finalizing chunks during abort: %+v", werr)
	}
	return err
}

func (w *Worker) shutdown() error {
	if !w.forceQuit.Load() {
		for {
			progressed, err := w.step()
			if err != nil {
				return w.abort(err)
			}
			if !progressed || w.forceQuit.Load() {
				break
			}
		}
	}
	if err := w.writer.Finalize(true); err != nil {
		w.log.Printf("error finalizing chunks at shutdown: %+v", err)
	}
	return nil
}

// step dequeues and processes one unit of work (a single packet, or a
// batch, depending on mode). It reports whether anything was dequeued.
func (w *Worker) step() (bool, error) {
	if w.batched {
		batch, ok := w.src.TryDequeueBatch()
		if !ok {
			return false, nil
		}
		w.stats.BatchSizeHistogram[len(batch)]++
		for _, pkt := range batch {
			if err := w.processPacket(pkt); err != nil {
				return true, err
			}
		}
		return true, nil
	}

	pkt, ok := w.src.TryDequeue()
	if !ok {
		return false, nil
	}
	w.stats.BatchSizeHistogram[1]++
	if err := w.processPacket(pkt); err != nil {
		return true, err
	}
	return true, nil
}

func (w *Worker) processPacket(pkt *digi.DataPacket) error {
	start := time.Now()
	w.router.BeginPacket()

	dstats, err := w.decoder.Decode(pkt, w.onRecord, w.onDeadtime)
	w.stats.ProcessingTime += time.Since(start)
	w.stats.Events += int64(dstats.EventsProcessed)

	if dstats.BoardFails > 0 {
		w.fails.Add(pkt.BoardID, int64(dstats.BoardFails))
	}
	w.dataPerChannel.AddAll(dstats.DataPerChannel)

	if err != nil {
		return err
	}

	// A packet that routed no fragment (all-BoardFail, or simply idle)
	// leaves the watermark at math.MaxInt64: nothing is known to be
	// older than any open chunk, so finalizing now would flush buffers
	// still waiting on fragments from a later packet.
	if w.router.Watermark() == math.MaxInt64 {
		return nil
	}

	if werr := w.writer.Finalize(false); werr != nil {
		w.log.Printf("error finalizing chunks: %+v", werr)
	}
	return nil
}

func (w *Worker) onRecord(rec digi.Record) {
	entry, ok := w.table.Entry(rec.BoardID)
	if !ok {
		return
	}
	for _, frag := range w.builder.Split(rec, int16(entry.NsPerSample)) {
		w.routeFragment(frag)
	}
}

func (w *Worker) onDeadtime(boardID int, timeNs int64) {
	w.routeFragment(w.builder.Deadtime(timeNs))
}

func (w *Worker) routeFragment(f digi.Fragment) {
	raw, err := f.MarshalBinary()
	if err != nil {
		w.log.Printf("could not marshal fragment: %+v", err)
		return
	}
	w.router.Route(raw, f.TimeNs)
	w.stats.Bytes += int64(len(raw))
	w.stats.Fragments++
}
