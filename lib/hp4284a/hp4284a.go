// Package hp4284a drives an HP 4284A (or Agilent E4980A) precision LCR meter
// as an eis.Meter. The meter is put in |Z|-θ(deg) mode with bus triggering;
// each measurement is a trigger followed by a fetch of the data buffer.
package hp4284a

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gotmc/eis"
	"github.com/gotmc/query"
	"github.com/rs/zerolog"
)

// Instrument is the command channel to the meter, usually a
// *prologix.Controller.
type Instrument interface {
	Command(format string, a ...any) error
	Query(cmd string) (string, error)
}

// ErrOutOfRange is wrapped by errors for values the meter cannot accept.
var ErrOutOfRange = errors.New("hp4284a: value out of range")

// Limits of the 4284A without option 001.
const (
	MinFrequency    = 20.0
	MaxFrequency    = 1e6
	MaxACLevel      = 20.0
	MaxBiasVoltage  = 20.0
	MaxTriggerDelay = 60.0
)

// Fetch status codes reported after the two data values.
const (
	statusNormal     = 0
	statusNoData     = -1
	statusADCFailure = 2
)

// LCRMeter is an HP 4284A reached over GPIB.
type LCRMeter struct {
	inst Instrument
	log  zerolog.Logger
	// triggered is set while a triggered reading has not been fetched yet,
	// so that a retried fetch does not trigger a second measurement.
	triggered bool
}

// Option configures an LCRMeter.
type Option func(*LCRMeter)

// WithLogger sets the logger for measurement warnings.
func WithLogger(l zerolog.Logger) Option { return func(m *LCRMeter) { m.log = l } }

// New selects the |Z|-θ(deg) function and bus triggering on the meter.
func New(inst Instrument, opts ...Option) (*LCRMeter, error) {
	m := &LCRMeter{inst: inst, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	for _, cmd := range []string{
		"FUNC:IMP:TYPE ZTD", // |Z| and θ in degrees
		"TRIG:SOUR BUS",
	} {
		if err := m.command("setup", cmd); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Identify returns the *IDN? string.
func (m *LCRMeter) Identify() (string, error) {
	return query.String(m.inst, "*IDN?")
}

func (m *LCRMeter) command(op, format string, a ...any) error {
	if err := m.inst.Command(format, a...); err != nil {
		return classify(op, err)
	}
	return nil
}

// program sends a command that changes the measurement conditions. A
// trigger still pending from an abandoned fetch belongs to the old
// conditions, so it is dropped and the next measurement triggers afresh.
func (m *LCRMeter) program(op, format string, a ...any) error {
	m.triggered = false
	return m.command(op, format, a...)
}

func (m *LCRMeter) queryFloat(op, cmd string) (float64, error) {
	v, err := query.Float64(m.inst, cmd)
	if err != nil {
		return 0, classify(op, err)
	}
	return v, nil
}

// classify marks bus timeouts as transient and everything else as fatal.
func classify(op string, err error) error {
	var to interface{ Timeout() bool }
	if errors.As(err, &to) && to.Timeout() {
		return eis.Transient(op, err)
	}
	return eis.Fatal(op, err)
}

func checkRange(name string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return eis.Fatal("set "+name, fmt.Errorf("%w: %s %g not in [%g, %g]", ErrOutOfRange, name, v, lo, hi))
	}
	return nil
}

// SetACAmplitudeVolts sets the rms oscillator level.
func (m *LCRMeter) SetACAmplitudeVolts(v float64) error {
	if err := checkRange("ac level", v, 0, MaxACLevel); err != nil {
		return err
	}
	return m.program("set ac level", "VOLT:LEV %g", v)
}

// ACAmplitudeVolts reads back the oscillator level.
func (m *LCRMeter) ACAmplitudeVolts() (float64, error) {
	return m.queryFloat("read ac level", "VOLT:LEV?")
}

// SetDCBiasVolts sets the DC bias level. The bias is applied only after
// EnableBias.
func (m *LCRMeter) SetDCBiasVolts(v float64) error {
	if err := checkRange("bias voltage", v, 0, MaxBiasVoltage); err != nil {
		return err
	}
	return m.program("set bias voltage", "BIAS:VOLT %g", v)
}

// DCBiasVolts reads back the DC bias level.
func (m *LCRMeter) DCBiasVolts() (float64, error) {
	return m.queryFloat("read bias voltage", "BIAS:VOLT:LEV?")
}

// EnableBias turns the DC bias output on.
func (m *LCRMeter) EnableBias() error { return m.program("enable bias", "BIAS:STAT ON") }

// DisableBias turns the DC bias output off.
func (m *LCRMeter) DisableBias() error { return m.program("disable bias", "BIAS:STAT OFF") }

// SetFrequencyHz programs the test frequency. The meter rounds it to the
// nearest frequency it can generate; FrequencyHz returns that value.
func (m *LCRMeter) SetFrequencyHz(f float64) error {
	if err := checkRange("frequency", f, MinFrequency, MaxFrequency); err != nil {
		return err
	}
	return m.program("set frequency", "FREQ %g", f)
}

// FrequencyHz returns the frequency the meter is actually generating.
func (m *LCRMeter) FrequencyHz() (float64, error) {
	return m.queryFloat("read frequency", "FREQ?")
}

// MeasureImpedance triggers a measurement and fetches |Z| in ohms and θ in
// degrees. A fetch that times out, or finds the data buffer empty, returns
// a transient error and leaves the trigger pending; the next call fetches
// again without re-triggering.
func (m *LCRMeter) MeasureImpedance() (float64, float64, error) {
	if !m.triggered {
		if err := m.command("trigger", "TRIG:IMM"); err != nil {
			return 0, 0, err
		}
		m.triggered = true
	}
	resp, err := m.inst.Query("FETC?")
	if err != nil {
		err = classify("fetch", err)
		if !eis.IsTransient(err) {
			m.triggered = false
		}
		return 0, 0, err
	}
	z, theta, status, err := parseFetch(resp)
	if err != nil {
		m.triggered = false
		return 0, 0, eis.Fatal("fetch", err)
	}
	switch {
	case status == statusNoData:
		return 0, 0, eis.Transient("fetch", fmt.Errorf("hp4284a: no data in buffer (status %d)", status))
	case status == statusADCFailure:
		m.triggered = false
		return 0, 0, eis.Fatal("fetch", fmt.Errorf("hp4284a: A/D converter not working (status %d)", status))
	case status != statusNormal:
		m.log.Warn().Int("status", status).Float64("z_ohm", z).Float64("phase_deg", theta).Msg("measurement flagged by meter")
	}
	m.triggered = false
	return z, theta, nil
}

// parseFetch splits a "<A>,<B>,<status>[,<bin>]" data buffer response.
func parseFetch(resp string) (a, b float64, status int, err error) {
	fields := strings.Split(strings.TrimSpace(resp), ",")
	if len(fields) < 2 {
		return 0, 0, 0, fmt.Errorf("hp4284a: malformed fetch response %q", resp)
	}
	if a, err = strconv.ParseFloat(strings.TrimSpace(fields[0]), 64); err != nil {
		return 0, 0, 0, fmt.Errorf("hp4284a: parsing |Z| from %q: %w", resp, err)
	}
	if b, err = strconv.ParseFloat(strings.TrimSpace(fields[1]), 64); err != nil {
		return 0, 0, 0, fmt.Errorf("hp4284a: parsing θ from %q: %w", resp, err)
	}
	if len(fields) > 2 {
		if status, err = strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(fields[2]), "+")); err != nil {
			return 0, 0, 0, fmt.Errorf("hp4284a: parsing status from %q: %w", resp, err)
		}
	}
	return a, b, status, nil
}
