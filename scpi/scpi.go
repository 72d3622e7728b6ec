// Package scpi provides primitives for working with devices that
// have SCPI interfaces
package scpi

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/qmlab/rsscope/comm"
)

const (
	// DefaultTimeout is the I/O timeout used when SCPI.Timeout is zero
	DefaultTimeout = 5 * time.Second

	errorQuery = "SYSTem:ERRor?"
)

// SCPI is a type for encapsulating SCPI communication
type SCPI struct {
	Pool *comm.Pool

	// Handshaking indicates if the communication shall use handshaking,
	// where an error query is sent with every message
	// to ensure the device accepted the input
	Handshaking bool

	// Timeout bounds each request/response round trip
	Timeout time.Duration

	// LittleEndian is the byte order of binary blocks sent by the device
	LittleEndian bool
}

// InstrumentError is an entry from the device's error queue
type InstrumentError struct {
	Code    int
	Message string
}

func (e InstrumentError) Error() string {
	return fmt.Sprintf("instrument error %d: %s", e.Code, e.Message)
}

// parseError decodes a SYSTem:ERRor? response like `-113,"Undefined header"`.
// A nil return means the queue was empty.
func parseError(resp string) error {
	resp = strings.TrimSpace(resp)
	pieces := strings.SplitN(resp, ",", 2)
	code, err := strconv.Atoi(strings.TrimPrefix(pieces[0], "+"))
	if err != nil {
		return fmt.Errorf("malformed error queue response %q", resp)
	}
	if code == 0 {
		return nil
	}
	ie := InstrumentError{Code: code}
	if len(pieces) == 2 {
		ie.Message = strings.Trim(pieces[1], "\"")
	}
	return ie
}

func (s *SCPI) timeout() time.Duration {
	if s.Timeout == 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

// lease gets a connection from the pool and wraps it for line-oriented
// communication.  The caller must return conn to the pool.
func (s *SCPI) lease() (io.ReadWriter, *comm.Terminator, error) {
	conn, err := s.Pool.Get()
	if err != nil {
		return nil, nil, err
	}
	err = comm.ApplyTimeout(conn, s.timeout())
	if err != nil {
		s.Pool.Destroy(conn)
		return nil, nil, err
	}
	return conn, comm.NewTerminator(conn, '\n', '\n'), nil
}

// checkErrors pops one entry from the error queue over an already leased connection
func checkErrors(term *comm.Terminator) error {
	_, err := io.WriteString(term, errorQuery)
	if err != nil {
		return err
	}
	line, err := term.ReadLine()
	if err != nil {
		return err
	}
	return parseError(string(line))
}

// Write sends a command to the device.  if s.Handshaking == true,
// it also requests an error response and checks that it is OK
// it is assumed this is used for set operations and not get.
func (s *SCPI) Write(cmds ...string) error {
	conn, term, err := s.lease()
	if err != nil {
		return err
	}
	var ioErr error
	defer func() { s.Pool.ReturnWithError(conn, ioErr) }()
	str := strings.Join(cmds, " ")
	if s.Handshaking {
		str = str + ";:" + errorQuery
	}
	_, ioErr = io.WriteString(term, str)
	if ioErr != nil {
		return ioErr
	}
	if s.Handshaking {
		var line []byte
		line, ioErr = term.ReadLine()
		if ioErr != nil {
			return ioErr
		}
		return parseError(string(line))
	}
	return nil
}

// WriteRead is write, but with a read call after.  It is assumed that "get"
// calls use this underlying mechanism
func (s *SCPI) WriteRead(cmds ...string) ([]byte, error) {
	conn, term, err := s.lease()
	if err != nil {
		return nil, err
	}
	var ioErr error
	defer func() { s.Pool.ReturnWithError(conn, ioErr) }()
	str := strings.Join(cmds, " ")
	if s.Handshaking {
		str = str + ";:" + errorQuery
	}
	_, ioErr = io.WriteString(term, str)
	if ioErr != nil {
		return nil, ioErr
	}
	var resp []byte
	resp, ioErr = term.ReadLine()
	if ioErr != nil {
		return nil, ioErr
	}
	if s.Handshaking {
		return splitErrorReply(resp)
	}
	return resp, nil
}

// splitErrorReply separates a query response from the error query reply
// appended to it.  The reply is the final ; separated field; semicolons
// inside quotes belong to the message.  A failed query has no response at
// all, so a line that is only an error reply is accepted too.
func splitErrorReply(resp []byte) ([]byte, error) {
	idx := lastUnquoted(resp, ';')
	if idx == -1 {
		if bytes.Contains(resp, []byte(`,"`)) {
			return nil, parseError(string(resp))
		}
		return resp, fmt.Errorf("response %q carries no error query reply", resp)
	}
	if err := parseError(string(resp[idx+1:])); err != nil {
		return resp[:idx], err
	}
	return resp[:idx], nil
}

// lastUnquoted returns the index of the last c outside double quotes, or -1
func lastUnquoted(b []byte, c byte) int {
	idx := -1
	quoted := false
	for i, v := range b {
		switch {
		case v == '"':
			quoted = !quoted
		case v == c && !quoted:
			idx = i
		}
	}
	return idx
}

// ReadString sends a command to the device, the reads the response
// and returns it as a decoded ASCII or UTF-8 string
func (s *SCPI) ReadString(cmds ...string) (string, error) {
	resp, err := s.WriteRead(cmds...)
	return strings.Trim(string(resp), "\""), err
}

// ReadBool sends a command to the device, then reads the
// response and parses it as a boolean
func (s *SCPI) ReadBool(cmds ...string) (bool, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return false, err
	}
	switch strings.ToUpper(resp) {
	case "ON":
		return true, nil
	case "OFF":
		return false, nil
	}
	return strconv.ParseBool(resp)
}

// ReadInt sends a command to the device, then reads the
// response and parses it as an integer.  Responses in
// exponential notation (1E+3) are accepted.
func (s *SCPI) ReadInt(cmds ...string) (int, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	i, err := strconv.Atoi(resp)
	if err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, err
	}
	return int(math.Round(f)), nil
}

// OPC queries *OPC? and reports whether all pending operations are complete
func (s *SCPI) OPC() (bool, error) {
	resp, err := s.ReadString("*OPC?")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(resp) == "1", nil
}

// ReadBlock sends a query and reads a response which may be an IEEE 488.2
// definite length binary block (#<n><len><data>).  For a binary response
// the block payload is returned and isBinary is true; otherwise the
// full line is returned.
func (s *SCPI) ReadBlock(cmd string) (payload []byte, isBinary bool, err error) {
	conn, term, err := s.lease()
	if err != nil {
		return nil, false, err
	}
	var ioErr error
	defer func() { s.Pool.ReturnWithError(conn, ioErr) }()
	_, ioErr = io.WriteString(term, cmd)
	if ioErr != nil {
		return nil, false, ioErr
	}
	payload, isBinary, ioErr = readBlockOrLine(term.Reader())
	if ioErr != nil {
		return nil, false, ioErr
	}
	if s.Handshaking {
		// checked after the transfer so the payload is not mixed with the reply
		if err := checkErrors(term); err != nil {
			return payload, isBinary, err
		}
	}
	return payload, isBinary, nil
}

// ReadFloats sends a query whose response is either a binary block of
// 32-bit floats or a comma separated ASCII list, and decodes it
func (s *SCPI) ReadFloats(cmd string) ([]float64, error) {
	payload, isBinary, err := s.ReadBlock(cmd)
	if err != nil {
		return nil, err
	}
	if isBinary {
		var order binary.ByteOrder = binary.BigEndian
		if s.LittleEndian {
			order = binary.LittleEndian
		}
		return DecodeFloat32Block(payload, order)
	}
	return ParseASCIIFloats(string(payload))
}

// ReadFile transfers a file from the instrument's mass memory to w,
// returning the number of bytes written
func (s *SCPI) ReadFile(instrumentPath string, w io.Writer) (int, error) {
	payload, isBinary, err := s.ReadBlock(fmt.Sprintf("MMEMory:DATA? '%s'", instrumentPath))
	if err != nil {
		return 0, err
	}
	if !isBinary {
		return 0, fmt.Errorf("expected binary block transferring %s, got %q", instrumentPath, payload)
	}
	return w.Write(payload)
}

// Raw sends a command to the scope and returns a response if it was a query,
// else a blank string
func (s *SCPI) Raw(str string) (string, error) {
	prev := s.Handshaking
	s.Handshaking = false
	defer func() { s.Handshaking = prev }()
	if strings.Contains(str, "?") {
		return s.ReadString(str)
	}
	return "", s.Write(str)
}

// PopError gets a single error from the queue on the device
func (s *SCPI) PopError() error {
	prev := s.Handshaking
	s.Handshaking = false
	defer func() { s.Handshaking = prev }()
	str, err := s.ReadString(errorQuery)
	if err != nil {
		return err
	}
	return parseError(str)
}

// AllErrors returns all errors from the device as a list.  Transport
// failures end the list.
func (s *SCPI) AllErrors() []error {
	var errs []error
	for {
		err := s.PopError()
		if err == nil {
			break
		}
		errs = append(errs, err)
		if _, ok := err.(InstrumentError); !ok {
			break
		}
	}
	return errs
}

// AllErrorsString is equivalent to AllErrors, but joining by newline
// if there were no errors, the error return value is nil, otherwise
// it is the first error in the list and has no particular meaning
func (s *SCPI) AllErrorsString() (string, error) {
	errs := s.AllErrors()
	if len(errs) == 0 {
		return "", nil
	}
	strs := make([]string, len(errs))
	for i := 0; i < len(errs); i++ {
		strs[i] = errs[i].Error()
	}
	return strings.Join(strs, "\n"), errs[0]
}

// Close frees the connections held by the pool
func (s *SCPI) Close() error {
	return s.Pool.Close()
}

// readBlockOrLine reads either a definite length block and its trailing
// terminator, or a single \n terminated line
func readBlockOrLine(r *bufio.Reader) ([]byte, bool, error) {
	first, err := r.Peek(1)
	if err != nil {
		return nil, false, err
	}
	if first[0] != '#' {
		line, err := r.ReadBytes('\n')
		if err != nil {
			return nil, false, err
		}
		return bytes.TrimRight(line, "\r\n"), false, nil
	}
	payload, err := ReadDefiniteBlock(r)
	if err != nil {
		return nil, true, err
	}
	// consume the terminator if the device sent one
	if b, err := r.Peek(1); err == nil && b[0] == '\n' {
		r.ReadByte()
	}
	return payload, true, nil
}

// ReadDefiniteBlock reads an IEEE 488.2 definite length arbitrary block,
// #<n><len><data>, from r and returns <data>
func ReadDefiniteBlock(r io.Reader) ([]byte, error) {
	hdr := make([]byte, 2)
	_, err := io.ReadFull(r, hdr)
	if err != nil {
		return nil, err
	}
	if hdr[0] != '#' {
		return nil, fmt.Errorf("first byte in block was %v, expected #", hdr[0])
	}
	nDigits := int(hdr[1]) - 48 // shift down by 48, ASCII->int
	if nDigits < 1 || nDigits > 9 {
		return nil, fmt.Errorf("block length digit count %q is not in 1..9", hdr[1])
	}
	lenBuf := make([]byte, nDigits)
	_, err = io.ReadFull(r, lenBuf)
	if err != nil {
		return nil, err
	}
	nbytes, err := strconv.Atoi(string(lenBuf))
	if err != nil {
		return nil, err
	}
	data := make([]byte, nbytes)
	_, err = io.ReadFull(r, data)
	return data, err
}

// DecodeFloat32Block converts a block of IEEE 754 single precision values
func DecodeFloat32Block(b []byte, order binary.ByteOrder) ([]float64, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("block of %d bytes is not a whole number of float32s", len(b))
	}
	out := make([]float64, len(b)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(order.Uint32(b[i*4:])))
	}
	return out, nil
}

// ParseASCIIFloats parses a comma separated list of numbers
func ParseASCIIFloats(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []float64{}, nil
	}
	pieces := strings.Split(s, ",")
	out := make([]float64, len(pieces))
	for i, p := range pieces {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
