// Copyright (c) 2020–2024 The eis developers. All rights reserved.
// Project site: https://github.com/gotmc/eis
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package eis

import "math"

// ImpedanceSample is one measured point of the sweep.
type ImpedanceSample struct {
	FrequencyHz  float64 // frequency reported by the meter, not the planned one
	MagnitudeOhm float64 // |Z|
	PhaseDeg     float64 // θ
	ReZOhm       float64
	ImZOhm       float64
}

// NewSample converts a polar reading into an ImpedanceSample.
func NewSample(freqHz, magnitudeOhm, phaseDeg float64) ImpedanceSample {
	sin, cos := math.Sincos(phaseDeg * math.Pi / 180)
	return ImpedanceSample{
		FrequencyHz:  freqHz,
		MagnitudeOhm: magnitudeOhm,
		PhaseDeg:     phaseDeg,
		ReZOhm:       magnitudeOhm * cos,
		ImZOhm:       magnitudeOhm * sin,
	}
}
