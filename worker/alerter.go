// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package worker

import (
	"crypto/tls"
	"fmt"
	"log"

	mail "gopkg.in/gomail.v2"
)

// Alerter mails a short notice to a fixed target list whenever a worker
// aborts on a fatal error. It is a best-effort side channel: a
// misconfigured or unreachable mail server never blocks shutdown, it is
// only logged.
type Alerter struct {
	Usr     string
	Pwd     string
	Server  string
	Port    int
	Targets []string

	msgLog *log.Logger
}

// NewAlerter returns an Alerter that logs via msgLog when it cannot send.
// A nil msgLog falls back to the standard logger.
func NewAlerter(usr, pwd, server string, port int, targets []string, msgLog *log.Logger) *Alerter {
	if msgLog == nil {
		msgLog = log.Default()
	}
	return &Alerter{Usr: usr, Pwd: pwd, Server: server, Port: port, Targets: targets, msgLog: msgLog}
}

// Configured reports whether enough fields are set to attempt a send.
func (a *Alerter) Configured() bool {
	return a != nil && a.Usr != "" && a.Pwd != "" && a.Server != "" && a.Port != 0 && len(a.Targets) > 0
}

// Fatal mails workerID's fatal error to Targets. It never returns an
// error to the caller; send failures are only logged, since a worker is
// already in the process of shutting down by the time Fatal is called.
func (a *Alerter) Fatal(workerID string, err error) {
	if !a.Configured() {
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", a.Usr)
	msg.SetHeader("Bcc", a.Targets...)
	msg.SetHeader("Subject", fmt.Sprintf("[strax worker %s] fatal error", workerID))
	msg.SetBody("text/plain", fmt.Sprintf("worker %s stopped on a fatal error:\n\n%+v\n", workerID, err))

	dial := mail.NewDialer(a.Server, a.Port, a.Usr, a.Pwd)
	dial.TLSConfig = &tls.Config{InsecureSkipVerify: true}

	if err := dial.DialAndSend(msg); err != nil {
		a.msgLog.Printf("could not send alert mail for worker %s: %+v", workerID, err)
	}
}
