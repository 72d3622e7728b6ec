/*
Package comm provides connection plumbing for communication with lab hardware.

Most usages of this package will boil down to:
 1. pick a CreationFunc for the physical link (TCP, serial, or a
    package-specific one such as usbtmc or hislip)
 2. put it behind a Pool so one connection is reused across commands
 3. wrap each leased connection in a Terminator to speak line-oriented text

A minimal example is provided below for a sensor that responds to
"RD?" with the current reading

	maker := comm.BackingOffTCPConnMaker("192.168.100.12:5025", 3*time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	conn, err := pool.Get()
	if err != nil {
		return 0, err
	}
	defer func() { pool.ReturnWithError(conn, err) }()
	term := comm.NewTerminator(conn, '\n', '\n')
	_, err = term.Write([]byte("RD?"))
	...
*/
package comm

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

var (
	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")
)

// CreationFunc is a function which returns a new "connection" to something
// a closure should be used to encapsulate the variables and functions needed
type CreationFunc func() (io.ReadWriteCloser, error)

// deadliner is implemented by net.Conn and the transports in this module
// that are built on top of one
type deadliner interface {
	SetDeadline(time.Time) error
}

// ApplyTimeout sets a deadline timeout into the future on rw if it
// supports deadlines.  Transports that do not are left untouched.
func ApplyTimeout(rw io.ReadWriter, timeout time.Duration) error {
	if d, ok := rw.(deadliner); ok {
		return d.SetDeadline(time.Now().Add(timeout))
	}
	return nil
}

// Terminator wraps a connection so that writes are terminated by Tx and
// reads are split on Rx.  Create a new one for each leased connection.
type Terminator struct {
	rw io.ReadWriter
	br *bufio.Reader
	Rx byte
	Tx byte
}

// NewTerminator wraps rw with the given receipt and transmission terminators
func NewTerminator(rw io.ReadWriter, rx, tx byte) *Terminator {
	return &Terminator{rw: rw, br: bufio.NewReader(rw), Rx: rx, Tx: tx}
}

// Write sends b, appending the Tx terminator if it is not already present
func (t *Terminator) Write(b []byte) (int, error) {
	if len(b) == 0 || b[len(b)-1] != t.Tx {
		b = append(b[:len(b):len(b)], t.Tx)
	}
	return t.rw.Write(b)
}

// Read reads one terminated message into p, terminator included
func (t *Terminator) Read(p []byte) (int, error) {
	buf, err := t.br.ReadBytes(t.Rx)
	n := copy(p, buf)
	if err != nil {
		return n, err
	}
	if n < len(buf) {
		return n, io.ErrShortBuffer
	}
	return n, nil
}

// ReadLine reads one message and returns it with the Rx terminator
// and any trailing carriage return stripped
func (t *Terminator) ReadLine() ([]byte, error) {
	buf, err := t.br.ReadBytes(t.Rx)
	if err != nil {
		if err == io.EOF && len(buf) > 0 {
			return buf, ErrTerminatorNotFound
		}
		return buf, err
	}
	buf = buf[:len(buf)-1]
	if len(buf) > 0 && buf[len(buf)-1] == '\r' {
		buf = buf[:len(buf)-1]
	}
	return buf, nil
}

// Reader exposes the buffered reader for callers that must read
// payloads containing the terminator, such as binary blocks
func (t *Terminator) Reader() *bufio.Reader {
	return t.br
}

// TCPSetup opens a new TCP connection and sets a timeout on connect, read, and write
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}

// BackingOffTCPConnMaker returns a CreationFunc that dials addr with an
// exponential backoff.  Instruments do not like being connection thrashed,
// and a refused connection is not retried.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		op := func() error {
			var err error
			conn, err = TCPSetup(addr, timeout)
			if err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "refused") {
					return backoff.Permanent(err)
				}
				return err
			}
			return nil
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// SerialConnMaker returns a CreationFunc that opens a serial port at the
// given baud rate with 8N1 framing
func SerialConnMaker(port string, baud int, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return serial.OpenPort(&serial.Config{
			Name:        port,
			Baud:        baud,
			ReadTimeout: timeout,
		})
	}
}
