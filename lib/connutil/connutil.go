// Package connutil opens the serial port of a Prologix-style GPIB adapter
// and sets up the controller for one instrument.
package connutil

import (
	"fmt"
	"time"

	"github.com/gotmc/eis/lib/find"
	"github.com/gotmc/eis/lib/prologix"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
	"go.uber.org/multierr"
)

// NoSecondaryAddress disables secondary addressing.
const NoSecondaryAddress = 0xff

type Conn struct {
	SerialPort  string // empty to auto-detect
	BaudRate    int
	GpibPAD     int
	GpibSAD     int
	Delay       time.Duration // delay between writes
	ReadTimeout time.Duration // serial port timeout; also caps the GPIB read timeout
	AR488       bool
	Clear       bool

	// Open opens the serial port; serial.Open when nil.
	Open func(name string, mode *serial.Mode) (serial.Port, error)
	// Find locates the port when SerialPort is empty; find.Find when nil.
	Find func(find.FilterFn) (string, error)
}

// Port resolves the serial port, auto-detecting a Prologix or AR488 adapter
// when none is configured.
func (c *Conn) Port() (string, error) {
	if c.SerialPort != "" {
		return c.SerialPort, nil
	}
	f := c.Find
	if f == nil {
		f = find.Find
	}
	port, err := f(find.Any(find.PrologixFilter, find.ArduinoFilter, find.PiPicoFilter))
	if err != nil {
		return "", fmt.Errorf("locating gpib adapter: %w", err)
	}
	return port, nil
}

// controllerReadTimeout converts the serial timeout to the controller's
// read_tmo_ms, which accepts 1-3000 ms.
func (c *Conn) controllerReadTimeout() int {
	ms := int(c.ReadTimeout / time.Millisecond)
	return min(max(ms, 1), 3000)
}

// Options returns the controller options implied by c.
func (c *Conn) Options(log zerolog.Logger) []prologix.ControllerOption {
	opts := []prologix.ControllerOption{
		prologix.WithLogger(log),
		prologix.WithReadTimeout(c.controllerReadTimeout()),
	}
	if c.Delay > 0 {
		opts = append(opts, prologix.WithWriteDelay(c.Delay))
	}
	if c.GpibSAD != NoSecondaryAddress && c.GpibSAD != 0 {
		opts = append(opts, prologix.WithSecondaryAddress(c.GpibSAD))
	}
	if c.AR488 {
		opts = append(opts, prologix.WithAR488())
	}
	return opts
}

// Setup opens the port and returns the controller together with the
// cleanup that releases it. Callers register further teardown steps on the
// returned Cleanup.
func (c *Conn) Setup(log zerolog.Logger) (*prologix.Controller, *Cleanup, error) {
	name, err := c.Port()
	if err != nil {
		return nil, nil, err
	}
	open := c.Open
	if open == nil {
		open = serial.Open
	}
	baud := c.BaudRate
	if baud == 0 {
		baud = 115200
	}
	log.Info().Str("port", name).Int("baud", baud).Msg("opening serial port")
	port, err := open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", name, err)
	}
	if err := port.SetReadTimeout(c.ReadTimeout); err != nil {
		return nil, nil, multierr.Append(fmt.Errorf("setting read timeout: %w", err), port.Close())
	}

	cleanup := &Cleanup{}
	cleanup.Defer("close serial port", port.Close)
	cleanup.Defer("discard unread data", port.ResetInputBuffer)

	gpib, err := prologix.NewController(port, c.GpibPAD, c.Clear, c.Options(log)...)
	if err != nil {
		return nil, nil, multierr.Append(err, cleanup.Run())
	}
	// Return local control to the front panel.
	cleanup.Defer("return to local", func() error { return gpib.FrontPanel(true) })
	return gpib, cleanup, nil
}

// Cleanup runs teardown steps in reverse registration order and reports
// every failure.
type Cleanup struct {
	steps []step
}

type step struct {
	name string
	fn   func() error
}

// Defer registers fn to run on Run.
func (c *Cleanup) Defer(name string, fn func() error) {
	c.steps = append(c.steps, step{name, fn})
}

// Run executes all steps, last registered first, even when some fail.
func (c *Cleanup) Run() error {
	var err error
	for i := len(c.steps) - 1; i >= 0; i-- {
		s := c.steps[i]
		if serr := s.fn(); serr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", s.name, serr))
		}
	}
	c.steps = nil
	return err
}
