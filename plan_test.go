package eis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanExampleScenario(t *testing.T) {
	freqs, err := Plan(100000, 20, 10, TruncateDecades)
	require.NoError(t, err)
	require.Len(t, freqs, 30)
	assert.Equal(t, 100000.0, freqs[0])
	assert.Equal(t, 20.0, freqs[len(freqs)-1])
	for i := 1; i < len(freqs); i++ {
		assert.Less(t, freqs[i], freqs[i-1], "point %d not decreasing", i)
	}
}

func TestPlanDirectionAndLength(t *testing.T) {
	tests := []struct {
		name       string
		start, end float64
		ppd        int
		policy     DecadePolicy
		wantLen    int
	}{
		{"down whole decades", 1e6, 1, 5, TruncateDecades, 30},
		{"up whole decades", 10, 1000, 7, TruncateDecades, 14},
		{"up fractional truncated", 20, 100000, 10, TruncateDecades, 30},
		{"down fractional kept", 100000, 20, 10, FractionalDecades, 37},
		{"one decade", 1000, 100, 2, TruncateDecades, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			freqs, err := Plan(tt.start, tt.end, tt.ppd, tt.policy)
			require.NoError(t, err)
			require.Len(t, freqs, tt.wantLen)
			assert.InDelta(t, tt.start, freqs[0], tt.start*1e-12)
			assert.InDelta(t, tt.end, freqs[len(freqs)-1], tt.end*1e-12)
			up := tt.end > tt.start
			for i := 1; i < len(freqs); i++ {
				if up {
					assert.Greater(t, freqs[i], freqs[i-1])
				} else {
					assert.Less(t, freqs[i], freqs[i-1])
				}
			}
		})
	}
}

func TestPlanLogUniformSpacing(t *testing.T) {
	freqs, err := Plan(1000, 10, 10, TruncateDecades)
	require.NoError(t, err)
	step := math.Log10(freqs[1]) - math.Log10(freqs[0])
	for i := 2; i < len(freqs); i++ {
		assert.InDelta(t, step, math.Log10(freqs[i])-math.Log10(freqs[i-1]), 1e-9)
	}
}

func TestPlanRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name       string
		start, end float64
		ppd        int
	}{
		{"equal frequencies", 1000, 1000, 10},
		{"zero points per decade", 1000, 10, 0},
		{"negative points per decade", 1000, 10, -3},
		{"zero start", 0, 10, 10},
		{"negative end", 1000, -10, 10},
		{"NaN start", math.NaN(), 10, 10},
		{"less than a decade", 1000, 200, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			freqs, err := Plan(tt.start, tt.end, tt.ppd, TruncateDecades)
			assert.Nil(t, freqs)
			var ce *ConfigError
			assert.ErrorAs(t, err, &ce)
		})
	}
}

func TestPointCount(t *testing.T) {
	assert.InDelta(t, 3.699, Decades(100000, 20), 1e-3)
	assert.Negative(t, Decades(20, 100000))
	assert.Equal(t, 30, PointCount(100000, 20, 10, TruncateDecades))
	assert.Equal(t, 37, PointCount(100000, 20, 10, FractionalDecades))
	assert.Equal(t, 20, PointCount(1000, 10, 10, TruncateDecades))
}

func TestNewSampleConversion(t *testing.T) {
	for _, m := range []float64{0, 1e-3, 1, 47.5, 1e6} {
		for _, theta := range []float64{-179.9, -90, -45, -0.5, 0, 30, 90, 135, 180} {
			s := NewSample(1000, m, theta)
			assert.InDelta(t, m, math.Hypot(s.ReZOhm, s.ImZOhm), 1e-9*math.Max(1, m))
			assert.Equal(t, theta, s.PhaseDeg)
			assert.Equal(t, 1000.0, s.FrequencyHz)
		}
	}
	s := NewSample(50, 10, -90)
	assert.InDelta(t, 0, s.ReZOhm, 1e-12)
	assert.InDelta(t, -10, s.ImZOhm, 1e-12)
}

func TestSweepConfigVolts(t *testing.T) {
	cfg := SweepConfig{ACAmplitudeMillivolts: 10}
	assert.InDelta(t, 0.01, cfg.ACAmplitudeVolts(), 1e-15)
}
