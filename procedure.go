// Copyright (c) 2020–2024 The eis developers. All rights reserved.
// Project site: https://github.com/gotmc/eis
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package eis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// DefaultSettleDelay is the pause after each point that lets the sample and
// the meter settle before the next frequency is programmed.
const DefaultSettleDelay = 500 * time.Millisecond

// RetryPolicy bounds how often a transient measurement failure is retried
// before the run fails.
type RetryPolicy struct {
	MaxRetries uint64
	Interval   time.Duration
}

// DefaultRetryPolicy retries a failed fetch five times, 100 ms apart.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 5, Interval: 100 * time.Millisecond}

var errStopped = errors.New("eis: run stopped while retrying")

// Procedure drives one Meter through impedance sweeps. The meter is owned
// exclusively by the running sweep; a second concurrent run gets ErrBusy.
type Procedure struct {
	meter  Meter
	settle time.Duration
	retry  RetryPolicy
	log    zerolog.Logger
	mu     sync.Mutex
}

// Option configures a Procedure.
type Option func(*Procedure)

// WithSettleDelay sets the pause after each point. Zero disables it.
func WithSettleDelay(d time.Duration) Option { return func(p *Procedure) { p.settle = d } }

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(rp RetryPolicy) Option { return func(p *Procedure) { p.retry = rp } }

// WithLogger sets the logger used for run events.
func WithLogger(l zerolog.Logger) Option { return func(p *Procedure) { p.log = l } }

// NewProcedure returns a Procedure driving m.
func NewProcedure(m Meter, opts ...Option) *Procedure {
	p := &Procedure{
		meter:  m,
		settle: DefaultSettleDelay,
		retry:  DefaultRetryPolicy,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins a sweep in its own goroutine and returns its handle.
// Cancelling ctx has the same effect as Run.RequestCancel.
func (p *Procedure) Start(ctx context.Context, cfg SweepConfig, sink Sink) (*Run, error) {
	if !p.mu.TryLock() {
		return nil, ErrBusy
	}
	r := newRun(cfg, nil)
	go func() {
		err := p.sweep(ctx, r, sink)
		// Release the meter before waking Wait, so a caller that waits
		// can start the next run straight away.
		p.mu.Unlock()
		r.finish(err)
	}()
	return r, nil
}

// Execute runs a sweep to completion on the calling goroutine. cancel may be
// nil. It returns nil when the sweep completes or is cancelled, a
// *ConfigError for an unusable configuration and an *InstrumentError when
// the meter fails.
func (p *Procedure) Execute(ctx context.Context, cfg SweepConfig, sink Sink, cancel Canceller) error {
	if !p.mu.TryLock() {
		return ErrBusy
	}
	r := newRun(cfg, cancel)
	err := p.sweep(ctx, r, sink)
	p.mu.Unlock()
	r.finish(err)
	return err
}

func (p *Procedure) sweep(ctx context.Context, r *Run, sink Sink) error {
	cfg := r.cfg
	log := p.log.With().Str("run", r.id.String()).Str("sample", cfg.SampleID).Logger()

	fail := func(err error) error {
		r.setState(Failed)
		emitted, planned := r.Progress()
		log.Error().Err(err).Int("emitted", emitted).Int("planned", planned).Msg("EIS procedure failed")
		return err
	}

	r.setState(Configuring)
	plan, err := cfg.Plan()
	if err != nil {
		return fail(err)
	}
	if err := p.meter.SetACAmplitudeVolts(cfg.ACAmplitudeVolts()); err != nil {
		return fail(asFatal("set ac amplitude", err))
	}
	if err := p.meter.SetDCBiasVolts(cfg.DCBias); err != nil {
		return fail(asFatal("set dc bias", err))
	}
	r.setState(Armed)

	if err := p.meter.EnableBias(); err != nil {
		return fail(asFatal("enable bias", err))
	}
	r.planned.Store(int64(len(plan)))
	r.setState(Sweeping)
	log.Info().
		Float64("start_hz", cfg.StartFrequency).
		Float64("end_hz", cfg.EndFrequency).
		Int("points", len(plan)).
		Float64("ac_v", cfg.ACAmplitudeVolts()).
		Float64("bias_v", cfg.DCBias).
		Msg("EIS sweep started")

	for i, f := range plan {
		if err := p.meter.SetFrequencyHz(f); err != nil {
			return fail(asFatal(fmt.Sprintf("set frequency %g Hz", f), err))
		}
		mag, phase, err := p.measure(ctx, r, log)
		if errors.Is(err, errStopped) {
			r.setState(Aborted)
			log.Info().Int("emitted", i).Msg("user aborted the EIS procedure while retrying a measurement")
			return nil
		}
		if err != nil {
			return fail(err)
		}
		actual, err := p.meter.FrequencyHz()
		if err != nil {
			return fail(asFatal("read frequency", err))
		}
		s := NewSample(actual, mag, phase)
		if err := sink.Accept(s); err != nil {
			return fail(fmt.Errorf("eis: emitting sample %d at %g Hz: %w", i, actual, err))
		}
		r.emitted.Add(1)
		log.Debug().
			Int("point", i).
			Float64("freq_hz", actual).
			Float64("z_ohm", mag).
			Float64("phase_deg", phase).
			Msg("point measured")

		p.wait(ctx)
		if r.stopRequested(ctx) {
			r.setState(Aborted)
			log.Info().Int("emitted", i+1).Int("planned", len(plan)).Msg("user aborted the EIS procedure")
			return nil
		}
	}
	r.setState(Completed)
	log.Info().Int("emitted", len(plan)).Msg("EIS sweep completed")
	return nil
}

// measure triggers and fetches one reading, retrying transient failures
// under the retry policy. A stop request seen between attempts returns
// errStopped.
func (p *Procedure) measure(ctx context.Context, r *Run, log zerolog.Logger) (mag, phase float64, err error) {
	attempts := 0
	op := func() error {
		if attempts > 0 && r.stopRequested(ctx) {
			return backoff.Permanent(errStopped)
		}
		attempts++
		m, ph, err := p.meter.MeasureImpedance()
		if err == nil {
			mag, phase = m, ph
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(asFatal("measure impedance", err))
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.Warn().Err(err).Int("attempt", attempts).Dur("retry_in", next).Msg("transient measurement failure")
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.retry.Interval), p.retry.MaxRetries)
	err = backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	switch {
	case err == nil:
		return mag, phase, nil
	case errors.Is(err, errStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 0, 0, errStopped
	case IsTransient(err):
		return 0, 0, Fatal("measure impedance", fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err))
	}
	return 0, 0, err
}

// wait sleeps for the settle delay or until ctx is done.
func (p *Procedure) wait(ctx context.Context) {
	if p.settle <= 0 {
		return
	}
	t := time.NewTimer(p.settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
