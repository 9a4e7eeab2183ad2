// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command straxd runs the chunked archival writer as a long-lived TDAQ
// process: it decodes digitizer packets, routes their fragments into
// time-partitioned chunks, and writes those chunks out as compressed
// files under a run directory.
package main // import "github.com/go-lpc/strax/cmd/straxd"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"golang.org/x/xerrors"

	"github.com/go-lpc/strax/chunk"
	"github.com/go-lpc/strax/format"
	"github.com/go-lpc/strax/worker"
)

var (
	outputPath  = flag.String("strax-output", "./", "output path for chunked archival files")
	runID       = flag.String("run", "run", "run identifier")
	dbName      = flag.String("db", "", "conditions database holding the format table (empty: no channel decoding)")
	nWorkers    = flag.Int("workers", 1, "number of ingest workers")
	payload     = flag.Int("payload-bytes", 220, "fragment payload size in bytes")
	compressor  = flag.String("compressor", "lz4", `compressor: "lz4" or "blosc"`)
	batchedMode = flag.Bool("batched", false, "use the batched dequeue mode instead of single-packet")

	alertUsr  = os.Getenv("MAIL_USERNAME")
	alertPwd  = os.Getenv("MAIL_PASSWORD")
	alertSrv  = os.Getenv("MAIL_SERVER")
	alertPort = os.Getenv("MAIL_PORT")
	alertTgts = os.Getenv("MAIL_TGTS")
)

func main() {
	cmd := flags.New()

	log.SetPrefix("straxd: ")
	log.SetFlags(0)

	dev := &daemon{}

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	if err := srv.Run(context.Background()); err != nil {
		log.Panicf("error: %+v", err)
	}
}

// daemon holds the TDAQ command handlers' state between /config, /start
// and /stop. It is not safe for concurrent command dispatch, which
// matches tdaq's own single-command-at-a-time contract.
type daemon struct {
	table  *format.Table
	outDir string

	src    *worker.QueueSource
	pool   *worker.Pool
	cancel context.CancelFunc
}

func (d *daemon) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Infof("configuring (db=%q output=%q run=%q)...", *dbName, *outputPath, *runID)

	tbl := format.NewTable()
	if *dbName != "" {
		db, err := format.Open(*dbName)
		if err != nil {
			return xerrors.Errorf("straxd: could not open conditions db: %w", err)
		}
		defer db.Close()

		loaded, err := db.LoadTable(ctx.Ctx)
		if err != nil {
			return xerrors.Errorf("straxd: could not load format table: %w", err)
		}
		tbl = loaded
	}
	d.table = tbl

	outDir := filepath.Join(*outputPath, *runID)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return xerrors.Errorf("straxd: could not create output dir %q: %w", outDir, err)
	}
	d.outDir = outDir

	return nil
}

func (d *daemon) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Infof("starting %d worker(s)...", *nWorkers)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	var comp chunk.Compressor = chunk.LZ4Compressor{}
	if *compressor == "blosc" {
		comp = chunk.NewBloscCompressor()
	}

	alerter := newAlerter()

	d.src = worker.NewQueueSource()
	fails := worker.NewFailCounter()
	dataPerChannel := worker.NewDataPerChannel()

	workers := make([]*worker.Worker, 0, *nWorkers)
	for i := 0; i < *nWorkers; i++ {
		opts := []worker.Option{
			worker.WithPayloadBytes(*payload),
			worker.WithCompressor(comp),
			worker.WithFailCounter(fails),
			worker.WithDataPerChannel(dataPerChannel),
			worker.WithAlerter(alerter),
		}
		if *batchedMode {
			opts = append(opts, worker.WithBatched())
		}
		workers = append(workers, worker.New(fmt.Sprintf("%d", i), d.src, d.table, d.outDir, hostname, opts...))
	}
	d.pool = worker.NewPool(workers...)

	runCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go func() {
		if err := d.pool.Run(runCtx); err != nil {
			log.Printf("worker pool stopped with error: %+v", err)
		}
	}()

	return nil
}

func (d *daemon) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Infof("stopping...")
	if d.pool != nil {
		d.pool.Stop(d.src.Len)
	}
	if d.cancel != nil {
		d.cancel()
	}
	return nil
}

func (d *daemon) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Infof("quitting...")
	return nil
}

func newAlerter() *worker.Alerter {
	port := 0
	fmt.Sscanf(alertPort, "%d", &port)
	var targets []string
	if alertTgts != "" {
		targets = filepath.SplitList(alertTgts)
	}
	return worker.NewAlerter(alertUsr, alertPwd, alertSrv, port, targets, log.New(os.Stdout, "straxd: ", 0))
}
