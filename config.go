// Copyright (c) 2020–2024 The eis developers. All rights reserved.
// Project site: https://github.com/gotmc/eis
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package eis

import "fmt"

// DecadePolicy selects how the number of sweep points is derived from the
// width of the frequency range.
type DecadePolicy int

const (
	// TruncateDecades multiplies the whole number of decades by the points
	// per decade, dropping any fractional decade from the point count.
	TruncateDecades DecadePolicy = iota
	// FractionalDecades uses the exact decade span, rounded to the nearest
	// point.
	FractionalDecades
)

func (p DecadePolicy) String() string {
	switch p {
	case TruncateDecades:
		return "truncate"
	case FractionalDecades:
		return "fractional"
	}
	return fmt.Sprintf("DecadePolicy(%d)", int(p))
}

// SweepConfig describes one impedance sweep. It is not modified once a run
// has started.
type SweepConfig struct {
	SampleID              string
	StartFrequency        float64 // Hz
	EndFrequency          float64 // Hz
	PointsPerDecade       int
	ACAmplitudeMillivolts float64 // rms drive level as entered, in mV
	DCBias                float64 // V
	DecadePolicy          DecadePolicy
}

// ACAmplitudeVolts returns the drive level in volts, as programmed into the
// meter.
func (c SweepConfig) ACAmplitudeVolts() float64 {
	return c.ACAmplitudeMillivolts / 1000
}

// Validate checks the frequency range and point density.
func (c SweepConfig) Validate() error {
	return validateRange(c.StartFrequency, c.EndFrequency, c.PointsPerDecade)
}

func validateRange(start, end float64, pointsPerDecade int) error {
	switch {
	case !(start > 0):
		return &ConfigError{Field: "start frequency", Reason: fmt.Sprintf("must be positive, got %g", start)}
	case !(end > 0):
		return &ConfigError{Field: "end frequency", Reason: fmt.Sprintf("must be positive, got %g", end)}
	case start == end:
		return &ConfigError{Field: "end frequency", Reason: fmt.Sprintf("must differ from start frequency %g", start)}
	case pointsPerDecade <= 0:
		return &ConfigError{Field: "points per decade", Reason: fmt.Sprintf("must be positive, got %d", pointsPerDecade)}
	}
	return nil
}
