/*
Package rohde provides an interface to Rohde & Schwarz RTO/RTE series
oscilloscopes.

A Scope wraps a single SCPI session.  Its methods issue short sequences of
instrument commands, poll the instrument until the work is complete, and
write traces and screenshots to disk.  A Scope is not safe for concurrent
use.
*/
package rohde

import (
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/qmlab/rsscope/comm"
	"github.com/qmlab/rsscope/scpi"
	"github.com/qmlab/rsscope/visa"
)

// Instrument is the command interface a Scope drives.  *scpi.SCPI
// implements it.
type Instrument interface {
	Write(cmds ...string) error
	ReadString(cmds ...string) (string, error)
	ReadInt(cmds ...string) (int, error)
	ReadBool(cmds ...string) (bool, error)
	ReadFloats(cmd string) ([]float64, error)
	ReadFile(instrumentPath string, w io.Writer) (int, error)
	OPC() (bool, error)
	Raw(str string) (string, error)
	AllErrors() []error
	Close() error
}

// Config holds the connection, acquisition and file naming settings of a
// Scope.  The zero value is not useful; start from DefaultConfig.
type Config struct {
	// Addr is the IP address, hostname, USB "vid::pid[::serial]", or serial port
	Addr string `koanf:"addr" yaml:"addr"`

	// Mode is one of LAN, hiLAN, USB, or ASRL
	Mode string `koanf:"mode" yaml:"mode"`

	// Channels is the ordered set of channels to enable and save
	Channels []int `koanf:"channels" yaml:"channels"`

	// VisaTimeout bounds each command round trip
	VisaTimeout time.Duration `koanf:"visaTimeout" yaml:"visaTimeout"`

	// OPCTimeout bounds the operation complete check
	OPCTimeout time.Duration `koanf:"opcTimeout" yaml:"opcTimeout"`

	// AcquisitionTimeout bounds an averaging run
	AcquisitionTimeout time.Duration `koanf:"acquisitionTimeout" yaml:"acquisitionTimeout"`

	// InstrumentPath is the directory on the scope screenshots are written to
	InstrumentPath string `koanf:"instrumentPath" yaml:"instrumentPath"`

	// Path is the host directory files are saved in
	Path string `koanf:"path" yaml:"path"`

	// Folder is an optional subdirectory of Path
	Folder string `koanf:"folder" yaml:"folder"`

	// FileName is the base name of saved files, without extension
	FileName string `koanf:"fileName" yaml:"fileName"`

	// FileFormat is csv or fits
	FileFormat string `koanf:"fileFormat" yaml:"fileFormat"`

	// ScreenshotFormat is png or bmp
	ScreenshotFormat string `koanf:"screenshotFormat" yaml:"screenshotFormat"`

	// Verbose enables progress messages
	Verbose bool `koanf:"verbose" yaml:"verbose"`

	// Save makes Acquire save what it acquired
	Save bool `koanf:"save" yaml:"save"`

	// Binary transfers traces as little endian float32 blocks instead of ASCII
	Binary bool `koanf:"binary" yaml:"binary"`
}

// DefaultConfig returns the settings a Scope uses unless told otherwise
func DefaultConfig() Config {
	return Config{
		Addr:               "192.168.0.2",
		Mode:               string(visa.LAN),
		Channels:           []int{1, 2, 3, 4},
		VisaTimeout:        6 * time.Second,
		OPCTimeout:         15 * time.Second,
		AcquisitionTimeout: 10 * time.Second,
		InstrumentPath:     "/INT/SCREEN/",
		Path:               ".",
		FileName:           "file",
		FileFormat:         "csv",
		ScreenshotFormat:   "png",
		Verbose:            true,
	}
}

// Scope is a session with an oscilloscope
type Scope struct {
	Config

	// Logger receives warnings and, when Verbose, progress messages.
	// It defaults to the standard logger.
	Logger *log.Logger

	inst Instrument

	acqInterval time.Duration
	opcInterval time.Duration
	calInterval time.Duration
}

func newScope(cfg Config, inst Instrument) *Scope {
	return &Scope{
		Config:      cfg,
		Logger:      log.Default(),
		inst:        inst,
		acqInterval: time.Second,
		opcInterval: 100 * time.Millisecond,
		calInterval: 10 * time.Second,
	}
}

// NewScope opens a session to the scope described by cfg and prepares it
// for use: the status is cleared, the instrument reset, and all channels
// turned on.
//
// The returned Scope is never nil.  If err is not nil the Scope is only
// partially constructed and its operations will fail.
func NewScope(cfg Config) (*Scope, error) {
	s := newScope(cfg, nil)
	resource, err := visa.ResourceString(visa.Mode(cfg.Mode), cfg.Addr)
	if err == nil {
		var maker comm.CreationFunc
		maker, err = visa.Open(resource, cfg.VisaTimeout)
		if err == nil {
			pool := comm.NewPool(1, time.Hour, maker)
			s.inst = &scpi.SCPI{
				Pool:         pool,
				Handshaking:  true,
				Timeout:      cfg.VisaTimeout,
				LittleEndian: cfg.Binary}
			return s, s.initialize()
		}
	}
	s.inst = disconnected{err}
	return s, s.fail("connect", CodeConnection, err)
}

// NewWithInstrument builds a Scope over an already opened Instrument and
// initializes it as NewScope does
func NewWithInstrument(cfg Config, inst Instrument) (*Scope, error) {
	s := newScope(cfg, inst)
	return s, s.initialize()
}

func (s *Scope) initialize() error {
	const op = "connect"
	if s.Verbose {
		name, err := s.inst.ReadString("SYST:NAME?")
		if err != nil {
			return s.fail(op, CodeConnection, err)
		}
		s.Logger.Printf("connection to instrument %s successful", name)
	}
	cmds := []string{"*CLS", "*RST", "CHAN:AON"}
	if s.Binary {
		cmds = append(cmds, "FORM REAL,32", "FORM:BORD LSBF")
	} else {
		cmds = append(cmds, "FORM ASC")
	}
	for _, cmd := range cmds {
		if err := s.inst.Write(cmd); err != nil {
			return s.fail(op, CodeConnection, err)
		}
	}
	return nil
}

// fail logs err and returns it as an *Error.  Errors that already are
// an *Error were logged when created and pass through untouched.
func (s *Scope) fail(op string, code Code, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	e = &Error{Op: op, Code: code, Err: err}
	s.Logger.Println(e)
	return e
}

// progress logs a message if the scope is verbose
func (s *Scope) progress(format string, args ...interface{}) {
	if s.Verbose {
		s.Logger.Printf(format, args...)
	}
}

// write sends each command in turn, stopping at the first failure
func (s *Scope) write(cmds ...string) error {
	for _, cmd := range cmds {
		if err := s.inst.Write(cmd); err != nil {
			return err
		}
	}
	return nil
}

// basePath joins Path, Folder and name
func (s *Scope) basePath(name string) string {
	return filepath.Join(s.Path, s.Folder, name)
}

// SetChannels replaces the set of channels that are enabled and saved
func (s *Scope) SetChannels(channels []int) error {
	for _, ch := range channels {
		if ch < 1 {
			return errors.Errorf("invalid channel %d", ch)
		}
	}
	s.Channels = append([]int(nil), channels...)
	return nil
}

// GetChannels returns the configured channels
func (s *Scope) GetChannels() ([]int, error) {
	return append([]int(nil), s.Channels...), nil
}

// SetFileName sets the base name of saved files
func (s *Scope) SetFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("file name must not be blank")
	}
	s.FileName = name
	return nil
}

// GetFileName returns the base name of saved files
func (s *Scope) GetFileName() (string, error) {
	return s.FileName, nil
}

// Raw sends a command or query verbatim, without error checking
func (s *Scope) Raw(cmd string) (string, error) {
	resp, err := s.inst.Raw(strings.TrimSpace(cmd))
	if err != nil {
		return resp, s.fail("raw", CodeInstrument, err)
	}
	return resp, nil
}

// Identify returns the instrument's *IDN? string
func (s *Scope) Identify() (string, error) {
	resp, err := s.inst.ReadString("*IDN?")
	if err != nil {
		return resp, s.fail("identify", CodeInstrument, err)
	}
	return resp, nil
}

// Errors drains the instrument's error queue
func (s *Scope) Errors() []error {
	return s.inst.AllErrors()
}

// Close ends the session
func (s *Scope) Close() error {
	return s.inst.Close()
}

// disconnected stands in for the Instrument of a Scope that failed to connect
type disconnected struct {
	err error
}

func (d disconnected) Write(...string) error                   { return d.err }
func (d disconnected) ReadString(...string) (string, error)    { return "", d.err }
func (d disconnected) ReadInt(...string) (int, error)          { return 0, d.err }
func (d disconnected) ReadBool(...string) (bool, error)        { return false, d.err }
func (d disconnected) ReadFloats(string) ([]float64, error)    { return nil, d.err }
func (d disconnected) ReadFile(string, io.Writer) (int, error) { return 0, d.err }
func (d disconnected) OPC() (bool, error)                      { return false, d.err }
func (d disconnected) Raw(string) (string, error)              { return "", d.err }
func (d disconnected) AllErrors() []error                      { return []error{d.err} }
func (d disconnected) Close() error                            { return nil }
