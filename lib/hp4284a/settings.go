package hp4284a

import "go.uber.org/multierr"

// Settings are the optional front-end settings applied once after the
// meter is opened.
type Settings struct {
	TriggerDelay    float64 // seconds, 0-60
	OpenCorrection  bool
	ShortCorrection bool
	ALC             bool // automatic level control
	DCIsolation     bool
	HighPower       bool // option 001 power amplifier / DC bias
}

// SetTriggerDelay sets the delay between trigger and measurement.
func (m *LCRMeter) SetTriggerDelay(seconds float64) error {
	if err := checkRange("trigger delay", seconds, 0, MaxTriggerDelay); err != nil {
		return err
	}
	return m.command("set trigger delay", "TRIG:DEL %g", seconds)
}

// EnableOpenCorrection enables the open-correction function.
func (m *LCRMeter) EnableOpenCorrection() error {
	return m.command("enable open correction", "CORR:OPEN:STAT ON")
}

// EnableShortCorrection enables the short-correction function.
func (m *LCRMeter) EnableShortCorrection() error {
	return m.command("enable short correction", "CORR:SHOR:STAT ON")
}

// SetALC switches automatic level control.
func (m *LCRMeter) SetALC(on bool) error {
	return m.command("set alc", "AMPL:ALC %s", onOff(on))
}

// SetDCIsolation switches DC bias current isolation.
func (m *LCRMeter) SetDCIsolation(on bool) error {
	return m.command("set dc isolation", "OUTP:DC:ISOL %s", onOff(on))
}

// EnableHighPower enables option 001. The E4980A ignores it.
func (m *LCRMeter) EnableHighPower() error {
	return m.command("enable high power", "OUTP:HPOW ON")
}

// Apply sends s to the meter. Every setting is attempted; the errors are
// combined.
func (m *LCRMeter) Apply(s Settings) error {
	var err error
	if s.HighPower {
		err = multierr.Append(err, m.EnableHighPower())
	}
	err = multierr.Append(err, m.SetTriggerDelay(s.TriggerDelay))
	if s.OpenCorrection {
		err = multierr.Append(err, m.EnableOpenCorrection())
	}
	if s.ShortCorrection {
		err = multierr.Append(err, m.EnableShortCorrection())
	}
	err = multierr.Append(err, m.SetALC(s.ALC))
	err = multierr.Append(err, m.SetDCIsolation(s.DCIsolation))
	return err
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
