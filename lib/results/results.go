// Package results writes EIS sweep samples to data files and plots as they
// arrive.
package results

import (
	"fmt"
	"strings"

	"github.com/gotmc/eis"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Columns of the data file, in order.
var Columns = []string{"Frequency (Hz)", "Impedance (Ω)", "Phase Angle (deg)", "Re[Z] (Ω)", "Im[Z] (Ω)"}

// Sink is an eis.Sink that holds resources until closed.
type Sink interface {
	eis.Sink
	Close() error
}

// Multi fans each sample out to every sink in order. The first sink error
// stops the fan-out for that sample.
type Multi []Sink

func (m Multi) Accept(s eis.ImpedanceSample) error {
	for _, sink := range m {
		if err := sink.Accept(s); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and combines their errors.
func (m Multi) Close() error {
	var err error
	for _, sink := range m {
		err = multierr.Append(err, sink.Close())
	}
	return err
}

// LogSink logs each sample at info level.
type LogSink struct {
	Log zerolog.Logger
}

func (l LogSink) Accept(s eis.ImpedanceSample) error {
	l.Log.Info().
		Float64("freq_hz", s.FrequencyHz).
		Float64("z_ohm", s.MagnitudeOhm).
		Float64("phase_deg", s.PhaseDeg).
		Float64("re_ohm", s.ReZOhm).
		Float64("im_ohm", s.ImZOhm).
		Msg("sample")
	return nil
}

func (LogSink) Close() error { return nil }

// Metadata describes the run a data file belongs to.
type Metadata struct {
	RunID  string
	Config eis.SweepConfig
}

// Parameters returns the procedure parameters keyed by their display name,
// in display order.
func (m Metadata) Parameters() [][2]string {
	c := m.Config
	return [][2]string{
		{"Sample ID", c.SampleID},
		{"Starting Frequency", fmt.Sprintf("%g Hz", c.StartFrequency)},
		{"Ending Frequency", fmt.Sprintf("%g Hz", c.EndFrequency)},
		{"Points per decade", fmt.Sprintf("%d", c.PointsPerDecade)},
		{"AC Voltage rms", fmt.Sprintf("%g mV", c.ACAmplitudeMillivolts)},
		{"OCV", fmt.Sprintf("%g V", c.DCBias)},
		{"Decade policy", c.DecadePolicy.String()},
		{"Run ID", m.RunID},
	}
}

// Placeholders maps the names usable in file name and title templates to
// their values.
func (m Metadata) Placeholders() map[string]string {
	p := make(map[string]string)
	for _, kv := range m.Parameters() {
		p[kv[0]] = kv[1]
	}
	return p
}

// ReplacePlaceholders substitutes every "{Name}" in s with values[Name].
// Unknown names are left untouched.
func ReplacePlaceholders(s string, values map[string]string) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(s[open:], '}')
		if end < 0 {
			break
		}
		name := s[open+1 : open+end]
		b.WriteString(s[:open])
		if v, ok := values[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[open : open+end+1])
		}
		s = s[open+end+1:]
	}
	b.WriteString(s)
	return b.String()
}
