// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package digi

import "golang.org/x/xerrors"

// DeadtimeChannel is the synthetic channel id carried by artificial
// deadtime fragments, emitted whenever the parser loses sync with a
// board's event stream and has to abandon the rest of an event.
//
// TODO(sbinet): add MV/NV sentinel channels for the muon/neutron veto
// boards once those firmwares are decoded here too.
const DeadtimeChannel = 790

// ErrUnknownChannel is returned by Decode when the format table has no
// global channel id for a (board, channel-index) pair. Unlike a garbled
// event, this is fatal: it indicates the channel map is misconfigured,
// not that the digitizer corrupted its own stream, so the worker that
// receives it must stop rather than keep counting and continuing.
var ErrUnknownChannel = xerrors.New("digi: unknown channel mapping")

// ErrUnknownFormat is returned by Decode when the format table has no
// entry for a packet's board id.
var ErrUnknownFormat = xerrors.New("digi: unknown board format")
