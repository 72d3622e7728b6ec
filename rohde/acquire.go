package rohde

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/qmlab/rsscope/poll"
	"github.com/qmlab/rsscope/util"
)

// Mode is an acquisition mode
type Mode string

const (
	// Single takes one trace
	Single Mode = "SINGle"

	// NSingle takes N traces into segmented memory
	NSingle Mode = "NSINGle"

	// Average averages N traces on the instrument
	Average Mode = "AVERage"
)

const (
	// MinRecordLength is the smallest manual record length, in samples
	MinRecordLength = 5e3

	// MaxRecordLength is the largest manual record length, in samples
	MaxRecordLength = 40e6
)

// RecordLength clamps a manual record length to the instrument's range
func RecordLength(length float64) float64 {
	return util.Clamp(length, MinRecordLength, MaxRecordLength)
}

// SegmentCount limits a requested number of segments to the maximum
// the instrument can hold
func SegmentCount(n, maxSegments int) int {
	if n > maxSegments {
		return maxSegments
	}
	return n
}

// Acquire takes data on the configured channels.
//
// mode is Single, NSingle or Average; n is the number of traces for NSingle
// and the number of averages for Average.  If auto is true the instrument
// picks the record length, otherwise length samples are recorded, clamped to
// [MinRecordLength, MaxRecordLength].
//
// If Save is set, the acquired data is written to disk: every segment for
// NSingle, the trace on screen otherwise.  An averaging timeout does not
// prevent the save; it is returned afterwards.
func (s *Scope) Acquire(mode Mode, n int, auto bool, length float64) error {
	const op = "acquire"
	err := s.SelectChannels()
	if err != nil {
		return s.fail(op, CodeInstrument, err)
	}
	err = s.inst.Write("ACQ:SEGM:STAT ON")
	if err != nil {
		return s.fail(op, CodeInstrument, err)
	}
	if auto {
		err = s.inst.Write("ACQ:POIN:AUT ON")
	} else {
		l := RecordLength(length)
		if l > length {
			s.Logger.Printf("minimum record length exceeded, setting to minimum: %g samples", l)
		} else if l < length {
			s.Logger.Printf("maximum record length exceeded, setting to maximum: %g samples", l)
		}
		err = s.write("ACQ:POIN:AUT OFF", "ACQ:MEM DMEM", fmt.Sprintf("ACQ:POIN %d", int(l)))
	}
	if err != nil {
		return s.fail(op, CodeInstrument, err)
	}

	m := strings.ToUpper(string(mode))
	hist := false
	var avgErr error
	if strings.Contains(m, "AVER") {
		avgErr = s.Average(n)
		if avgErr != nil && !errors.Is(avgErr, ErrTimeout) {
			return avgErr
		}
	} else {
		count := 1
		if strings.Contains(m, "NSING") {
			_, maxSegments, err := s.HistValues()
			if err != nil {
				return s.fail(op, CodeInstrument, err)
			}
			if c := SegmentCount(n, maxSegments); c != n {
				n = c
				s.progress("number of segments exceeds max segments, setting N to %d", n)
			}
			count = n
			hist = true
		}
		err = s.write("ACQ:TYPE REFR", fmt.Sprintf("ACQ:NSIN:COUN %d", count), "RUNSingle")
		if err != nil {
			return s.fail(op, CodeInstrument, err)
		}
		err = poll.Until(s.acqInterval, 0, func() (bool, error) {
			status, err := s.inst.ReadString("ACQ:STAT?")
			if err != nil {
				return false, err
			}
			done := strings.ToUpper(status) == "COMP"
			if !done {
				s.progress("acquiring...")
			}
			return done, nil
		})
		if err != nil {
			return s.fail(op, CodeInstrument, err)
		}
	}

	if s.Save {
		if hist {
			err = s.SaveHistory()
		} else {
			err = s.SaveChannels()
		}
		if err != nil {
			return err
		}
	}
	return avgErr
}

// Average runs the instrument's averaging for n traces, then stops
// acquisition.  It gives up after AcquisitionTimeout with a CodeTimeout
// error; acquisition is stopped either way.
func (s *Scope) Average(n int) error {
	const op = "average"
	err := s.write(
		"ACQ:TYPE AVER",
		"ACQ:AVER:RES",
		"ACQ:NSIN:COUN 1",
		fmt.Sprintf("ACQ:AVER:COUN %d", n),
		"RUN")
	if err != nil {
		return s.fail(op, CodeInstrument, err)
	}
	err = poll.Until(s.acqInterval, s.AcquisitionTimeout, func() (bool, error) {
		done, err := s.inst.ReadBool("ACQ:AVER:COMP?")
		if err == nil && !done {
			s.progress("acquiring...")
		}
		return done, err
	})
	stopErr := s.inst.Write("STOP")
	switch {
	case errors.Is(err, poll.ErrTimeout):
		return s.fail(op, CodeTimeout, errors.WithMessage(ErrTimeout, "average acquisition"))
	case err != nil:
		return s.fail(op, CodeInstrument, err)
	case stopErr != nil:
		return s.fail(op, CodeInstrument, stopErr)
	}
	return nil
}

// Calibrate performs a self-alignment and blocks until the instrument
// reports it has finished, however long that takes.
//
// A self-alignment is recommended after a firmware update, once a week,
// and when the temperature changes by more than 5 deg C.
func (s *Scope) Calibrate() error {
	const op = "calibrate"
	err := s.inst.Write("CAL")
	if err != nil {
		return s.fail(op, CodeInstrument, err)
	}
	var status string
	err = poll.Until(s.calInterval, 0, func() (bool, error) {
		str, err := s.inst.ReadString("CAL:STAT?")
		if err != nil {
			return false, err
		}
		status = strings.ToUpper(str)
		if status == "RUN" {
			s.Logger.Println("instrument calibration in progress - please wait...")
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return s.fail(op, CodeInstrument, err)
	}
	switch status {
	case "OK":
		s.Logger.Println("self-alignment successful")
		return nil
	case "ABOR":
		return s.fail(op, CodeCalibrationAborted, errors.New("calibration aborted"))
	case "ERR":
		return s.fail(op, CodeCalibration, errors.New("an error occurred while calibrating"))
	}
	return s.fail(op, CodeCalibration, errors.Errorf("unexpected calibration status %q", status))
}

// SelectChannels turns every channel off, then turns on the configured ones
func (s *Scope) SelectChannels() error {
	s.progress("selecting channels %s", util.IntSliceToCSV(s.Channels))
	err := s.inst.Write("CHAN:AOFF")
	if err != nil {
		return err
	}
	for _, ch := range s.Channels {
		err = s.inst.Write(fmt.Sprintf("CHAN%d:STAT ON", ch))
		if err != nil {
			return err
		}
		s.OPCCheck()
	}
	return nil
}

// OPCCheck polls *OPC? until the instrument reports all operations are
// complete or OPCTimeout elapses.  A timeout is logged, not returned.
func (s *Scope) OPCCheck() bool {
	err := poll.Until(s.opcInterval, s.OPCTimeout, s.inst.OPC)
	if err == nil {
		return true
	}
	if errors.Is(err, poll.ErrTimeout) {
		s.Logger.Println("OPC timeout")
	} else {
		s.Logger.Println("OPC check:", err)
	}
	return false
}

// waitOPC polls *OPC? with no time limit
func (s *Scope) waitOPC() error {
	return poll.Until(s.opcInterval, 0, s.inst.OPC)
}

// HistValues returns the current record length and the maximum number of
// segments that fit in memory at that length
func (s *Scope) HistValues() (recordLength, maxSegments int, err error) {
	recordLength, err = s.inst.ReadInt("ACQ:POIN?")
	if err != nil {
		return
	}
	maxSegments, err = s.inst.ReadInt("ACQ:COUN?")
	return
}
