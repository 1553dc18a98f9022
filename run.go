// Copyright (c) 2020–2024 The eis developers. All rights reserved.
// Project site: https://github.com/gotmc/eis
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package eis

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// Run is the handle of a sweep started with Procedure.Start. All methods
// are safe for concurrent use.
type Run struct {
	id       uuid.UUID
	cfg      SweepConfig
	state    atomic.Int32
	cancel   CancelFlag
	external Canceller
	emitted  atomic.Int64
	planned  atomic.Int64
	done     chan struct{}
	err      error
}

func newRun(cfg SweepConfig, external Canceller) *Run {
	return &Run{
		id:       uuid.New(),
		cfg:      cfg,
		external: external,
		done:     make(chan struct{}),
	}
}

// ID identifies the run in logs and result metadata.
func (r *Run) ID() uuid.UUID { return r.id }

// Config returns the configuration the run was started with.
func (r *Run) Config() SweepConfig { return r.cfg }

// State returns the current state.
func (r *Run) State() State { return State(r.state.Load()) }

func (r *Run) setState(s State) { r.state.Store(int32(s)) }

// RequestCancel asks the sweep to stop after the point being measured.
func (r *Run) RequestCancel() { r.cancel.Cancel() }

// IsCancelled reports whether cancellation was requested on the run or on
// the Canceller it was started with.
func (r *Run) IsCancelled() bool {
	return r.cancel.IsCancelled() || (r.external != nil && r.external.IsCancelled())
}

func (r *Run) stopRequested(ctx context.Context) bool {
	return r.IsCancelled() || ctx.Err() != nil
}

// Progress returns the number of samples emitted so far and the size of the
// frequency plan. planned is zero until the plan has been computed.
func (r *Run) Progress() (emitted, planned int) {
	return int(r.emitted.Load()), int(r.planned.Load())
}

// Done is closed once the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run ends and returns its error. A cancelled run
// returns nil.
func (r *Run) Wait() error {
	<-r.done
	return r.err
}

func (r *Run) finish(err error) {
	r.err = err
	close(r.done)
}
