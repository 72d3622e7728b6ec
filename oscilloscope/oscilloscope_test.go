package oscilloscope_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/qmlab/rsscope/oscilloscope"
)

func ExampleHeader_Axis() {
	h := oscilloscope.Header{Start: 0, Stop: 1, Count: 5}
	fmt.Println(h.Axis())
	// Output: [0 0.25 0.5 0.75 1]
}

func TestAxisExact(t *testing.T) {
	h, err := oscilloscope.HeaderFromValues([]float64{0, 1, 5})
	if err != nil {
		t.Fatal(err)
	}
	expected := []float64{0.0, 0.25, 0.5, 0.75, 1.0}
	if diff := cmp.Diff(expected, h.Axis()); diff != "" {
		t.Errorf("axis mismatch (-want +got):\n%s", diff)
	}
}

func TestAxisDegenerate(t *testing.T) {
	if l := len(oscilloscope.Header{Start: 1, Stop: 2, Count: 0}.Axis()); l != 0 {
		t.Errorf("expected empty axis, got %d samples", l)
	}
	one := oscilloscope.Header{Start: -3e-6, Stop: 3e-6, Count: 1}.Axis()
	if len(one) != 1 || one[0] != -3e-6 {
		t.Errorf("expected [start], got %v", one)
	}
}

func TestAxisEndpointsNegativeStart(t *testing.T) {
	h := oscilloscope.Header{Start: -5e-7, Stop: 5e-7, Count: 10001}
	ax := h.Axis()
	if ax[0] != h.Start || ax[len(ax)-1] != h.Stop {
		t.Errorf("expected endpoints %g, %g got %g, %g", h.Start, h.Stop, ax[0], ax[len(ax)-1])
	}
}

func TestHeaderFromValuesShort(t *testing.T) {
	_, err := oscilloscope.HeaderFromValues([]float64{0, 1})
	if err == nil {
		t.Error("expected an error for a two value header")
	}
}

func TestEncodeCSV(t *testing.T) {
	tbl := oscilloscope.Table{
		Labels: []string{"time (s)", "C_1 (V)", "C_2 (V)"},
		Columns: [][]float64{
			{0, 0.5, 1},
			{0.1, 0.2, 0.3},
			{-1e-06, 2, 3, 4}, // longer columns are truncated to the shortest
		},
	}
	var buf bytes.Buffer
	err := tbl.EncodeCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}
	expected := "time (s),C_1 (V),C_2 (V)\n0,0.1,-1e-06\n0.5,0.2,2\n1,0.3,3\n"
	if buf.String() != expected {
		t.Errorf("expected\n%s\ngot\n%s", expected, buf.String())
	}
}

func TestEncodeFITSHeader(t *testing.T) {
	tbl := oscilloscope.Table{
		Labels:  []string{"time (s)", "C_1 (V)"},
		Columns: [][]float64{{0, 1}, {2, 3}},
	}
	var buf bytes.Buffer
	err := tbl.EncodeFITS(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("SIMPLE  =")) {
		t.Errorf("expected a FITS primary header, got %q", buf.Bytes()[:16])
	}
	if buf.Len()%2880 != 0 {
		t.Errorf("expected FITS output in 2880 byte records, got %d bytes", buf.Len())
	}
	if !bytes.Contains(buf.Bytes(), []byte("COL2")) {
		t.Error("expected column labels in the header")
	}
}

func TestEncodeFITSEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := (oscilloscope.Table{}).EncodeFITS(&buf); err == nil {
		t.Error("expected an error for an empty table")
	}
}
