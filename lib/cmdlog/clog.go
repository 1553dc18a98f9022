// Package cmdlog renders instrument traffic in colour for interactive
// debugging sessions.
package cmdlog

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
)

func isAscii(s string) bool {
	return !strings.ContainsFunc(s, func(r rune) bool {
		switch {
		case r < 7:
			return true
		case r > 6 && r < 14:
			return false
		case r > 13 && r < 32:
			return true
		case r > 127:
			return true
		}
		return false
	})
}

var (
	CmdStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	R1Style  = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	R2Style  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Instrument is the command channel being logged.
type Instrument interface {
	Command(format string, a ...any) error
	Query(cmd string) (string, error)
}

// Logged wraps an Instrument and logs every command and response at debug
// level.
type Logged struct {
	inst Instrument
	log  zerolog.Logger
}

// Wrap returns inst with its traffic logged to l.
func Wrap(inst Instrument, l zerolog.Logger) *Logged {
	return &Logged{inst: inst, log: l}
}

func (l *Logged) Command(format string, a ...any) error {
	cmd := format
	if a != nil {
		cmd = fmt.Sprintf(format, a...)
	}
	err := l.inst.Command("%s", cmd)
	if err != nil {
		l.log.Debug().Msgf("%s: %s", CmdStyle.Render(cmd), ErrStyle.Render(err.Error()))
		return err
	}
	l.log.Debug().Msgf("%s()", CmdStyle.Render(cmd))
	return nil
}

func (l *Logged) Query(q string) (string, error) {
	a, err := l.inst.Query(q)
	if err != nil {
		l.log.Debug().Msgf("%s: %s", CmdStyle.Render(q), ErrStyle.Render(err.Error()))
		return a, err
	}
	l.log.Debug().Msg(FormatResponse(q, a))
	return a, nil
}

// FormatResponse renders a query and its response for the log: printable
// responses are quoted, binary ones shown in hex.
func FormatResponse(q, a string) string {
	q = CmdStyle.Render(q)
	a = strings.TrimSuffix(a, "\n")
	switch {
	case len(a) == 0:
		return fmt.Sprintf("%s: %s", q, R1Style.Render("<no response>"))
	case isAscii(a):
		return fmt.Sprintf("%s: [%d] %s", q, len(a), R2Style.Render(fmt.Sprintf("%q", a)))
	case len(a) < 32:
		return fmt.Sprintf("%s: [%d] %q (% 2x)", q, len(a), a, []byte(a))
	}
	return fmt.Sprintf("%s: [%d] % 2x", q, len(a), []byte(a))
}
