// Copyright (c) 2020–2024 The eis developers. All rights reserved.
// Project site: https://github.com/gotmc/eis
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package prologix talks to a GPIB instrument through a Prologix GPIB-USB
// (or AR488) controller attached as a virtual serial port.
package prologix

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrTimeout is returned when the instrument does not answer before the
// serial read timeout. It is safe to retry the read.
var ErrTimeout error = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string { return "prologix: read timed out" }
func (timeoutError) Timeout() bool { return true }

// Controller models a GPIB controller-in-charge.
type Controller struct {
	rw               io.ReadWriter
	rd               *bufio.Reader
	primaryAddr      int
	hasSecondaryAddr bool
	secondaryAddr    int
	auto             bool
	usbTerm          byte
	eotChar          byte
	eos              GpibTerm
	readTimeoutMS    int
	writeDelay       time.Duration
	ar488            bool // compatibility with Arduino AR488 - see WithAR488 documentation for details.
	log              zerolog.Logger
}

// ControllerOption applies an option to the controller.
type ControllerOption func(*Controller)

// NewController creates a GPIB controller-in-charge at the given address using
// the given Prologix port. Enable clear to send the Selected Device Clear
// (SDC) message to the GPIB address. Optionally controller configuration can
// be included using a ControllerOption.
func NewController(
	rw io.ReadWriter,
	addr int,
	clear bool,
	opts ...ControllerOption,
) (*Controller, error) {
	c := Controller{
		rw:            rw,
		primaryAddr:   addr,
		usbTerm:       '\n',
		eotChar:       '\n',
		readTimeoutMS: 500,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	c.rd = bufio.NewReader(timeoutReader{rw})

	if !isPrimaryAddressValid(c.primaryAddr) {
		return nil, fmt.Errorf("invalid primary address %d (must by 0-30)", c.primaryAddr)
	}
	addrCmd := fmt.Sprintf("addr %d", c.primaryAddr)
	if c.hasSecondaryAddr {
		if !isSecondaryAddressValid(c.secondaryAddr) {
			return nil, fmt.Errorf("invalid secondary address %d (must be 96-126)", c.secondaryAddr)
		}
		addrCmd = fmt.Sprintf("addr %d %d", c.primaryAddr, c.secondaryAddr)
	}

	cmds := []string{}
	if !c.ar488 {
		cmds = append(cmds,
			"verbose 0", // turn off verbosity if on
			"savecfg 0", // Disable saving of configuration parameters in EPROM
		)
	}
	cmds = append(cmds,
		addrCmd,  // Set the primary address.
		"mode 1", // Switch to controller mode.
		"auto 0", // Turn off read-after-write and address instrument to listen.
		"eoi 1",  // Enable EOI assertion with last character.
		fmt.Sprintf("eos %d", c.eos),
		fmt.Sprintf("read_tmo_ms %d", c.readTimeoutMS),
		fmt.Sprintf("eot_char %d", c.eotChar),
		"eot_enable 1", // Append character when EOI detected.
	)
	if !c.ar488 {
		cmds = append(cmds, "savecfg 1")
	}
	if clear {
		cmds = append(cmds, "clr")
	}
	for _, cmd := range cmds {
		if err := c.CommandController(cmd); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// WithSecondaryAddress sets a secondary address, which must be in the range of
// 96 and 126, inclusive.
func WithSecondaryAddress(addr int) ControllerOption {
	return func(c *Controller) {
		c.hasSecondaryAddr = true
		c.secondaryAddr = addr
	}
}

// WithWriteDelay pauses before every write. Slow instruments and the AR488
// drop commands that arrive back to back.
func WithWriteDelay(d time.Duration) ControllerOption {
	return func(c *Controller) { c.writeDelay = d }
}

// WithGPIBTermination sets the terminator the controller appends to
// commands sent over GPIB. The default is AppendCRLF.
func WithGPIBTermination(term GpibTerm) ControllerOption {
	return func(c *Controller) { c.eos = term }
}

// WithReadTimeout sets the GPIB read timeout the controller applies while
// waiting on the instrument (1-3000 ms).
func WithReadTimeout(ms int) ControllerOption {
	return func(c *Controller) { c.readTimeoutMS = ms }
}

// WithLogger logs every command and response at debug level.
func WithLogger(l zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.log = l }
}

// WithAR488 slightly alters the init commands, for compatiblity with the
// Arduino-based AR488. Specifically, we do not emit 'verbose 0', nor do
// we toggle savecfg.
func WithAR488() ControllerOption { return func(c *Controller) { c.ar488 = true } }

func (c *Controller) write(s string) error {
	if c.writeDelay > 0 {
		time.Sleep(c.writeDelay)
	}
	_, err := io.WriteString(c.rw, s)
	return err
}

// Command formats according to a format specifier if provided and sends a
// SCPI/ASCII command to the instrument at the currently assigned GPIB address.
// All leading and trailing whitespace is removed before appending the USB
// terminator to the command sent to the Prologix.
func (c *Controller) Command(format string, a ...any) error {
	cmd := format
	if a != nil {
		cmd = fmt.Sprintf(format, a...)
	}
	cmd = strings.TrimSpace(cmd)
	c.log.Debug().Str("cmd", cmd).Msg("gpib command")
	return c.write(fmt.Sprintf("%s%c", cmd, c.usbTerm))
}

// Query queries the instrument at the currently assigned GPIB address using
// the given SCPI/ASCII command and returns the response without its
// terminator. A response that does not arrive before the serial read
// timeout yields ErrTimeout.
func (c *Controller) Query(cmd string) (string, error) {
	cmd = strings.TrimSpace(cmd)
	c.log.Debug().Str("query", cmd).Msg("gpib query")
	if err := c.write(fmt.Sprintf("%s%c", cmd, c.usbTerm)); err != nil {
		return "", fmt.Errorf("error writing command: %w", err)
	}
	// If read-after-write is disabled, need to tell the Prologix controller to
	// read.
	if !c.auto {
		if err := c.write(fmt.Sprintf("++read eoi%c", c.usbTerm)); err != nil {
			return "", fmt.Errorf("error sending `read eoi` command: %w", err)
		}
	}
	s, err := c.readResponse()
	c.log.Debug().Str("query", cmd).Str("response", s).Err(err).Msg("gpib response")
	return s, err
}

// QueryController sends the given command to the Prologix controller and
// returns its response as a string.
func (c *Controller) QueryController(cmd string) (string, error) {
	if err := c.CommandController(cmd); err != nil {
		return "", err
	}
	return c.readResponse()
}

// CommandController sends the given command to the Prologix controller. To
// indicate this is a command for the Prologix controller, thereby not
// transmitting to the instrument over GPIB, two plus signs `++` are prepended.
// Addtionally, a new line is appended to act as the USB termination character.
func (c *Controller) CommandController(cmd string) error {
	cmd = strings.ToLower(strings.TrimSpace(cmd))
	c.log.Debug().Str("cmd", "++"+cmd).Msg("controller command")
	return c.write(fmt.Sprintf("++%s%c", cmd, c.usbTerm))
}

// Version returns the controller firmware version string.
func (c *Controller) Version() (string, error) {
	return c.QueryController("ver")
}

// ClearDevice sends the Selected Device Clear (SDC) message to the
// instrument.
func (c *Controller) ClearDevice() error {
	return c.CommandController("clr")
}

// FrontPanel returns the instrument to local (front panel) control when
// local is true; otherwise it asserts remote enable.
func (c *Controller) FrontPanel(local bool) error {
	if local {
		return c.CommandController("loc")
	}
	return c.CommandController("llo")
}

func (c *Controller) readResponse() (string, error) {
	s, err := c.rd.ReadString(c.eotChar)
	if errors.Is(err, io.EOF) && len(s) > 0 {
		err = nil
	}
	return strings.TrimRight(s, "\r\n"), err
}

// timeoutReader turns the empty read a serial port returns when its read
// timeout expires into ErrTimeout.
type timeoutReader struct {
	r io.Reader
}

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == nil {
		return 0, ErrTimeout
	}
	return n, err
}

// GpibTerm provides the type for the available GPIB terminators.
type GpibTerm int

// Available GPIB terminators for the Prologix Controller.
const (
	AppendCRLF GpibTerm = iota
	AppendCR
	AppendLF
	AppendNothing
)

var gpibTermDesc = map[GpibTerm]string{
	AppendCRLF:    `Append CR+LF (\r\n) to instrument commands`,
	AppendCR:      `Append CR (\r) to instrument commands`,
	AppendLF:      `Append LF (\n) to instrument commands`,
	AppendNothing: `Do not append anything to instrument commands`,
}

func (term GpibTerm) String() string {
	return gpibTermDesc[term]
}

// isPrimaryAddressValid checks that the primary GPIB address is between 0 and
// 30, inclusive.
func isPrimaryAddressValid(addr int) bool {
	return addr >= 0 && addr <= 30
}

// isSecondaryAddressValid checks that the secondary GPIB address is between 96
// and 126, inclusive.
func isSecondaryAddressValid(addr int) bool {
	return addr >= 96 && addr <= 126
}
