package cmdlog

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echo struct {
	sent []string
	err  error
}

func (e *echo) Command(format string, a ...any) error {
	e.sent = append(e.sent, fmt.Sprintf(format, a...))
	return e.err
}

func (e *echo) Query(cmd string) (string, error) {
	e.sent = append(e.sent, cmd)
	return "+1.0E+03", e.err
}

func TestLoggedPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	inst := &echo{}
	l := Wrap(inst, zerolog.New(&buf).Level(zerolog.DebugLevel))

	require.NoError(t, l.Command("FREQ %g", 1000.0))
	require.NoError(t, l.Command("%s", "VOLT:LEV 50%"))
	s, err := l.Query("FREQ?")
	require.NoError(t, err)
	assert.Equal(t, "+1.0E+03", s)
	assert.Equal(t, []string{"FREQ 1000", "VOLT:LEV 50%", "FREQ?"}, inst.sent)
	assert.Contains(t, buf.String(), "FREQ 1000")
	assert.Contains(t, buf.String(), "+1.0E+03")
}

func TestLoggedErrors(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("boom")
	l := Wrap(&echo{err: boom}, zerolog.New(&buf))
	assert.ErrorIs(t, l.Command("TRIG:IMM"), boom)
	_, err := l.Query("FETC?")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "boom")
}

func TestFormatResponse(t *testing.T) {
	assert.Contains(t, FormatResponse("ID?", ""), "<no response>")
	assert.Contains(t, FormatResponse("ID?", "ID TEK/7912AD\n"), "[13]")
	assert.Contains(t, FormatResponse("RAW?", "\x01\x02"), "01 02")
}

func TestIsAscii(t *testing.T) {
	assert.True(t, isAscii("+1.0E+03,-4.5E+01,+0\r\n"))
	assert.False(t, isAscii("\x01abc"))
	assert.False(t, isAscii("é"))
}
