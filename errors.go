// Copyright (c) 2020–2024 The eis developers. All rights reserved.
// Project site: https://github.com/gotmc/eis
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package eis

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a sweep is started on a Procedure whose meter
	// is already driven by another run.
	ErrBusy = errors.New("eis: a sweep is already running on this meter")

	// ErrRetriesExhausted is wrapped into the fatal InstrumentError returned
	// once a transient measurement failure outlasts the retry policy.
	ErrRetriesExhausted = errors.New("eis: measurement retries exhausted")
)

// ConfigError reports an invalid SweepConfig or a frequency plan that cannot
// be measured. No instrument I/O happens before it is returned.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("eis: invalid configuration: %s %s", e.Field, e.Reason)
}

// InstrumentError wraps a failure reported by the meter. Transient errors
// (bus timeouts, an empty data buffer) are retried by the Procedure; all
// others end the run.
type InstrumentError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *InstrumentError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("eis: %s instrument error during %s: %v", kind, e.Op, e.Err)
}

func (e *InstrumentError) Unwrap() error { return e.Err }

// Transient marks err as a recoverable failure of op.
func Transient(op string, err error) error {
	return &InstrumentError{Op: op, Transient: true, Err: err}
}

// Fatal marks err as an unrecoverable failure of op.
func Fatal(op string, err error) error {
	return &InstrumentError{Op: op, Err: err}
}

// IsTransient reports whether err, or any error it wraps, is a transient
// InstrumentError.
func IsTransient(err error) bool {
	var ie *InstrumentError
	return errors.As(err, &ie) && ie.Transient
}

// asFatal leaves typed errors untouched and classifies anything else as a
// fatal failure of op.
func asFatal(op string, err error) error {
	var ie *InstrumentError
	if errors.As(err, &ie) && !ie.Transient {
		return err
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return err
	}
	return Fatal(op, err)
}
