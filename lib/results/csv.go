package results

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/gotmc/eis"
)

// CSVFile streams samples to a comma separated data file. The file starts
// with "#"-prefixed metadata lines followed by the column header; every
// sample is flushed to disk as soon as it is accepted.
type CSVFile struct {
	f    *os.File
	bw   *bufio.Writer
	w    *csv.Writer
	path string
}

// CreateCSV creates path and writes the header.
func CreateCSV(path string, meta Metadata) (*CSVFile, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	c := &CSVFile{f: f, bw: bufio.NewWriter(f), path: path}
	c.w = csv.NewWriter(c.bw)

	fmt.Fprintln(c.bw, "#Procedure: <EIS sweep>")
	fmt.Fprintln(c.bw, "#Parameters:")
	for _, kv := range meta.Parameters() {
		fmt.Fprintf(c.bw, "#\t%s: %s\n", kv[0], kv[1])
	}
	fmt.Fprintln(c.bw, "#Data:")
	if err := c.w.Write(Columns); err != nil {
		f.Close()
		return nil, err
	}
	if err := c.flush(); err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

// Path returns the file name.
func (c *CSVFile) Path() string { return c.path }

func (c *CSVFile) Accept(s eis.ImpedanceSample) error {
	rec := []string{
		formatFloat(s.FrequencyHz),
		formatFloat(s.MagnitudeOhm),
		formatFloat(s.PhaseDeg),
		formatFloat(s.ReZOhm),
		formatFloat(s.ImZOhm),
	}
	if err := c.w.Write(rec); err != nil {
		return err
	}
	return c.flush()
}

func (c *CSVFile) flush() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return err
	}
	return c.bw.Flush()
}

func (c *CSVFile) Close() error {
	if err := c.flush(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
