// Package oscilloscope provides type definitions for oscilloscope traces
// and encoders to write them to disk
package oscilloscope

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/astrogo/fitsio"
)

// Header describes the horizontal extent of a channel's record, as
// reported by the scope alongside the data
type Header struct {
	// Start is the time of the first sample in seconds
	Start float64 `json:"start"`

	// Stop is the time of the last sample in seconds
	Stop float64 `json:"stop"`

	// Count is the number of samples in the record
	Count int `json:"count"`
}

// HeaderFromValues converts the numeric list returned by the scope,
// (start, stop, count[, values per sample]), into a Header
func HeaderFromValues(vals []float64) (Header, error) {
	if len(vals) < 3 {
		return Header{}, fmt.Errorf("waveform header has %d values, need at least 3", len(vals))
	}
	return Header{Start: vals[0], Stop: vals[1], Count: int(vals[2])}, nil
}

// Axis returns Count linearly spaced timestamps from Start to Stop, inclusive
func (h Header) Axis() []float64 {
	if h.Count <= 0 {
		return []float64{}
	}
	out := make([]float64, h.Count)
	if h.Count == 1 {
		out[0] = h.Start
		return out
	}
	step := (h.Stop - h.Start) / float64(h.Count-1)
	for i := 0; i < h.Count; i++ {
		out[i] = h.Start + float64(i)*step
	}
	// avoid accumulated rounding at the endpoint
	out[h.Count-1] = h.Stop
	return out
}

// Table is a set of equal-purpose columns, such as a time axis and the
// traces of several channels, that are written out row by row
type Table struct {
	// Labels holds one label per column
	Labels []string

	// Columns holds the data, one slice per label
	Columns [][]float64
}

// Rows returns the number of complete rows, the length of the shortest column
func (t Table) Rows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	n := len(t.Columns[0])
	for _, c := range t.Columns[1:] {
		if len(c) < n {
			n = len(c)
		}
	}
	return n
}

// EncodeCSV writes a header row of labels followed by one row per sample,
// comma delimited.  Columns longer than the shortest are truncated.
func (t Table) EncodeCSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	writer := csv.NewWriter(bw)
	if len(t.Labels) > 0 {
		err := writer.Write(t.Labels)
		if err != nil {
			return err
		}
	}
	row := make([]string, len(t.Columns))
	nrows := t.Rows()
	for i := 0; i < nrows; i++ {
		for j := 0; j < len(t.Columns); j++ {
			row[j] = strconv.FormatFloat(t.Columns[j][i], 'g', -1, 64)
		}
		err := writer.Write(row)
		if err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// EncodeFITS streams the table to w as a two dimensional double precision
// image, one image row per column.  Labels are stored as COLn cards.
func (t Table) EncodeFITS(w io.Writer, metadata ...fitsio.Card) error {
	nrows := t.Rows()
	ncols := len(t.Columns)
	if ncols == 0 {
		return fmt.Errorf("cannot encode a table with no columns")
	}
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(-64, []int{nrows, ncols})
	defer im.Close()
	for i, l := range t.Labels {
		metadata = append(metadata, fitsio.Card{Name: fmt.Sprintf("COL%d", i+1), Value: l})
	}
	err = im.Header().Append(metadata...)
	if err != nil {
		return err
	}
	buf := make([]float64, 0, nrows*ncols)
	for _, c := range t.Columns {
		buf = append(buf, c[:nrows]...)
	}
	err = im.Write(buf)
	if err != nil {
		return err
	}
	return fits.Write(im)
}
