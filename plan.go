// Copyright (c) 2020–2024 The eis developers. All rights reserved.
// Project site: https://github.com/gotmc/eis
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package eis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// decadeEpsilon absorbs log10 rounding so that an exact span such as
// 1 kHz to 10 Hz counts as two whole decades.
const decadeEpsilon = 1e-9

// Decades returns the signed width of the sweep in decades. It is negative
// when sweeping upward.
func Decades(start, end float64) float64 {
	return math.Log10(start) - math.Log10(end)
}

// PointCount returns the number of frequencies a sweep from start to end
// measures under policy.
func PointCount(start, end float64, pointsPerDecade int, policy DecadePolicy) int {
	d := math.Abs(Decades(start, end))
	if policy == FractionalDecades {
		return int(math.Round(d * float64(pointsPerDecade)))
	}
	return int(math.Floor(d+decadeEpsilon)) * pointsPerDecade
}

// Plan returns the frequencies to measure, log-uniformly spaced from start
// to end inclusive and ordered in the direction start→end.
func Plan(start, end float64, pointsPerDecade int, policy DecadePolicy) ([]float64, error) {
	if err := validateRange(start, end, pointsPerDecade); err != nil {
		return nil, err
	}
	n := PointCount(start, end, pointsPerDecade, policy)
	if n < 2 {
		return nil, &ConfigError{
			Field:  "frequency range",
			Reason: fmt.Sprintf("%g Hz to %g Hz yields %d points under the %s policy, need at least 2", start, end, n, policy),
		}
	}
	freqs := floats.LogSpan(make([]float64, n), start, end)
	freqs[0], freqs[n-1] = start, end
	return freqs, nil
}

// Plan returns the frequency plan for c.
func (c SweepConfig) Plan() ([]float64, error) {
	return Plan(c.StartFrequency, c.EndFrequency, c.PointsPerDecade, c.DecadePolicy)
}
