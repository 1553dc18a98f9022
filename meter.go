// Copyright (c) 2020–2024 The eis developers. All rights reserved.
// Project site: https://github.com/gotmc/eis
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package eis

import "sync/atomic"

// Meter is the LCR meter capability a sweep needs. MeasureImpedance blocks
// until a reading is available; failures that are safe to retry are
// reported as transient InstrumentErrors.
type Meter interface {
	SetACAmplitudeVolts(v float64) error
	SetDCBiasVolts(v float64) error
	EnableBias() error
	DisableBias() error
	SetFrequencyHz(f float64) error
	FrequencyHz() (float64, error)
	MeasureImpedance() (magnitudeOhm, phaseDeg float64, err error)
}

// Sink receives each sample as soon as it is measured, in measurement
// order. Accept must not block the sweep indefinitely.
type Sink interface {
	Accept(s ImpedanceSample) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ImpedanceSample) error

func (f SinkFunc) Accept(s ImpedanceSample) error { return f(s) }

// Canceller is polled between measurement points.
type Canceller interface {
	IsCancelled() bool
}

// CancelFlag is a Canceller set by a user action. The zero value is not
// cancelled.
type CancelFlag struct {
	set atomic.Bool
}

// Cancel sets the flag.
func (f *CancelFlag) Cancel() { f.set.Store(true) }

func (f *CancelFlag) IsCancelled() bool { return f.set.Load() }
