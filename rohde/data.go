package rohde

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"

	"github.com/qmlab/rsscope/oscilloscope"
	"github.com/qmlab/rsscope/util"
)

// QueryData returns the samples of one channel.  If the channel cannot be
// read the error wraps ErrChannelUnavailable.
func (s *Scope) QueryData(channel int) ([]float64, error) {
	data, err := s.inst.ReadFloats(fmt.Sprintf("CHAN%d:DATA?", channel))
	if err != nil {
		return nil, s.unavailable("query data", channel, err)
	}
	s.OPCCheck()
	return data, nil
}

// QueryTime returns the time axis of one channel, reconstructed from its
// header.  If the channel cannot be read the error wraps ErrChannelUnavailable.
func (s *Scope) QueryTime(channel int) ([]float64, error) {
	vals, err := s.inst.ReadFloats(fmt.Sprintf("CHAN%d:DATA:HEAD?", channel))
	if err != nil {
		return nil, s.unavailable("query time", channel, err)
	}
	hdr, err := oscilloscope.HeaderFromValues(vals)
	if err != nil {
		return nil, s.unavailable("query time", channel, err)
	}
	s.OPCCheck()
	return hdr.Axis(), nil
}

func (s *Scope) unavailable(op string, channel int, cause error) error {
	s.Logger.Printf("channel %d unavailable, please check connection: %v", channel, cause)
	return &Error{
		Op:   op,
		Code: CodeChannelUnavailable,
		Err:  errors.WithMessagef(ErrChannelUnavailable, "channel %d: %v", channel, cause)}
}

// SaveChannels writes the time axis and the data of every configured
// channel to <Path>/<Folder>/<FileName>.<FileFormat>.  A channel that
// cannot be read is left out of the file.
func (s *Scope) SaveChannels() error {
	return s.saveChannels(s.FileName)
}

func (s *Scope) saveChannels(name string) error {
	const op = "save channels"
	if len(s.Channels) == 0 {
		return s.fail(op, CodeInstrument, ErrNoChannels)
	}
	start := time.Now()
	t, err := s.QueryTime(s.Channels[0])
	if err != nil {
		return err
	}
	tbl := oscilloscope.Table{
		Labels:  []string{"time (s)"},
		Columns: [][]float64{t}}
	for _, ch := range s.Channels {
		data, err := s.QueryData(ch)
		if werr := s.waitOPC(); werr != nil {
			return s.fail(op, CodeInstrument, werr)
		}
		if err != nil {
			continue
		}
		tbl.Labels = append(tbl.Labels, fmt.Sprintf("C_%d (V)", ch))
		tbl.Columns = append(tbl.Columns, data)
	}
	path, err := s.writeTable(name, tbl)
	if err != nil {
		return s.fail(op, CodeIO, err)
	}
	s.progress("saved %s in %v", path, time.Since(start))
	return nil
}

// writeTable encodes tbl in FileFormat at a de-duplicated path and
// returns the path
func (s *Scope) writeTable(name string, tbl oscilloscope.Table) (string, error) {
	format := strings.ToLower(s.FileFormat)
	if format == "" {
		format = "csv"
	}
	path := util.UniquePath(s.basePath(name), format)
	if err := os.MkdirAll(s.basePath(""), 0755); err != nil {
		return path, err
	}
	f, err := os.Create(path)
	if err != nil {
		return path, err
	}
	defer f.Close()
	switch format {
	case "fits", "fit", "fts":
		err = tbl.EncodeFITS(f, fitsio.Card{Name: "ORIGIN", Value: "rsscope"})
	default:
		err = tbl.EncodeCSV(f)
	}
	if err != nil {
		return path, err
	}
	return path, f.Close()
}

// SaveHistory brings each segment in the instrument's history to the
// screen in turn and saves it with SaveChannels, appending the segment
// number to FileName
func (s *Scope) SaveHistory() error {
	const op = "save history"
	if len(s.Channels) == 0 {
		return s.fail(op, CodeInstrument, ErrNoChannels)
	}
	n, err := s.inst.ReadInt("ACQ:AVA?")
	if err != nil {
		return s.fail(op, CodeInstrument, err)
	}
	for i := 1; i <= n; i++ {
		err = s.inst.Write(fmt.Sprintf("CHAN%d:HIST:CURR %d", s.Channels[0], i))
		if err != nil {
			return s.fail(op, CodeInstrument, err)
		}
		s.OPCCheck()
		err = s.saveChannels(s.FileName + strconv.Itoa(i))
		if err != nil {
			return err
		}
	}
	return nil
}

// Screenshot captures the instrument's display, copies it to
// <Path>/<Folder>/<FileName>.<ScreenshotFormat> and deletes it from the
// instrument.  ScreenshotFormat must be png or bmp; anything else is
// replaced by png.
func (s *Scope) Screenshot() error {
	const op = "screenshot"
	format := strings.ToLower(s.ScreenshotFormat)
	if format != "png" && format != "bmp" {
		s.Logger.Printf("screenshot format must be either png or bmp, not %q, defaulting to png", s.ScreenshotFormat)
		format = "png"
		s.ScreenshotFormat = format
	}
	err := s.write(
		fmt.Sprintf(`MMEM:CDIR "%s"`, s.InstrumentPath),
		"HCOP:FORM "+strings.ToUpper(format),
		fmt.Sprintf(`MMEM:NAME "%s"`, s.FileName),
		"HCOP:IMM")
	if err != nil {
		return s.fail(op, CodeInstrument, err)
	}
	err = s.waitOPC()
	if err != nil {
		return s.fail(op, CodeInstrument, err)
	}

	remote := s.FileName + "." + format
	path := util.UniquePath(s.basePath(s.FileName), format)
	if err = os.MkdirAll(s.basePath(""), 0755); err != nil {
		return s.fail(op, CodeIO, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return s.fail(op, CodeIO, err)
	}
	_, err = s.inst.ReadFile(s.InstrumentPath+remote, f)
	cerr := f.Close()
	if err != nil {
		os.Remove(path)
		return s.fail(op, CodeInstrument, err)
	}
	if cerr != nil {
		return s.fail(op, CodeIO, cerr)
	}
	s.progress("screenshot saved to %s", path)

	err = s.inst.Write(fmt.Sprintf(`MMEM:DEL "%s"`, remote))
	if err != nil {
		return s.fail(op, CodeInstrument, err)
	}
	return nil
}
