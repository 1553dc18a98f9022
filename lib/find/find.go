// Package find locates the serial port of a USB GPIB adapter.
package find

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

type FilterFn func(*enumerator.PortDetails) bool

// PrologixFilter matches the FTDI FT245R used by the Prologix GPIB-USB
// controller.
func PrologixFilter(p *enumerator.PortDetails) bool {
	return p.IsUSB && strings.EqualFold(p.VID, "0403") && strings.EqualFold(p.PID, "6001")
}

// ArduinoFilter matches boards with the Arduino vendor id, as used by the
// AR488 adapter.
func ArduinoFilter(p *enumerator.PortDetails) bool {
	return p.IsUSB && strings.EqualFold(p.VID, "2341")
}

// PiPicoFilter matches a Raspberry Pi Pico running AR488.
func PiPicoFilter(p *enumerator.PortDetails) bool {
	return p.IsUSB && strings.EqualFold(p.VID, "2e8a")
}

func SerialFilter(s string) FilterFn {
	return func(p *enumerator.PortDetails) bool { return p.SerialNumber == s }
}

// Any matches a port accepted by any of filters.
func Any(filters ...FilterFn) FilterFn {
	return func(p *enumerator.PortDetails) bool {
		for _, f := range filters {
			if f(p) {
				return true
			}
		}
		return false
	}
}

// Lister enumerates serial ports.
type Lister func() ([]*enumerator.PortDetails, error)

// Find searches for a usb serial device. If filter is not nil,
// it is used to narrow choices down. The first device for which
// it returns true (if any) is chosen.
func Find(filter FilterFn) (string, error) {
	return FindWith(enumerator.GetDetailedPortsList, filter)
}

// FindWith is Find over the ports returned by list.
func FindWith(list Lister, filter FilterFn) (string, error) {
	all, err := list()
	if err != nil {
		return "", err
	}
	var ports Ports
	for _, p := range all {
		if p.IsUSB {
			ports = append(ports, p)
		}
	}
	if filter != nil {
		for _, p := range ports {
			if filter(p) {
				return p.Name, nil
			}
		}
	}
	switch len(ports) {
	case 0:
		return "", fmt.Errorf("no matching usb serial ports found")
	case 1:
		return ports[0].Name, nil
	}
	return "", fmt.Errorf("multiple usb serial ports:\n%s", ports)
}

type Ports []*enumerator.PortDetails

func (ps Ports) String() string {
	s := make([]string, 0, len(ps))
	for _, p := range ps {
		s = append(s, fmt.Sprintf("%s vid/pid %s/%s serial %s", p.Name, p.VID, p.PID, p.SerialNumber))
	}
	return strings.Join(s, "\n")
}
