/*
Package hislip implements the synchronous channel of the High-Speed LAN
Instrument Protocol (IVI-6.1) as an io.ReadWriteCloser.

Only what a request/response SCPI client needs is implemented: the
Initialize and AsyncInitialize handshake, Data/DataEnd messages, and
Error/FatalError reporting.  Locking, device clear, SRQ and overlapped
mode are not supported.

Every message is a 16 byte header followed by a payload:

	0-1   prologue "HS"
	2     message type
	3     control code
	4-7   message parameter, big endian
	8-15  payload length, big endian
*/
package hislip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	// DefaultPort is the IANA assigned HiSLIP port
	DefaultPort = "4880"

	// DefaultSubAddress is the sub-address of the first HiSLIP server on a device
	DefaultSubAddress = "hislip0"

	headerSize = 16

	protocolVersion = 0x0100 // 1.0

	// vendorID is the two character ID sent in Initialize
	vendorID = 'Q'<<8 | 'M'

	// firstMessageID is the message ID of the first message after Initialize
	firstMessageID = 0xffffff00

	// maxPayload bounds a single received payload
	maxPayload = 1 << 30
)

// MessageType is the HiSLIP message type code
type MessageType byte

// message types used by this package, see IVI-6.1 table 4
const (
	Initialize              MessageType = 0
	InitializeResponse      MessageType = 1
	FatalError              MessageType = 2
	Error                   MessageType = 3
	Data                    MessageType = 6
	DataEnd                 MessageType = 7
	AsyncInitialize         MessageType = 17
	AsyncInitializeResponse MessageType = 18
)

var (
	// ErrBadPrologue is generated when a message does not begin with "HS"
	ErrBadPrologue = errors.New("hislip: message prologue is not HS")

	prologue = [2]byte{'H', 'S'}
)

// Header is a decoded HiSLIP message header
type Header struct {
	Type          MessageType
	ControlCode   byte
	Parameter     uint32
	PayloadLength uint64
}

// Encode serializes the header
func (h Header) Encode() [headerSize]byte {
	var out [headerSize]byte
	out[0] = prologue[0]
	out[1] = prologue[1]
	out[2] = byte(h.Type)
	out[3] = h.ControlCode
	binary.BigEndian.PutUint32(out[4:8], h.Parameter)
	binary.BigEndian.PutUint64(out[8:16], h.PayloadLength)
	return out
}

// DecodeHeader parses a 16 byte header
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < headerSize {
		return Header{}, fmt.Errorf("hislip: header is %d bytes, need %d", len(b), headerSize)
	}
	if b[0] != prologue[0] || b[1] != prologue[1] {
		return Header{}, ErrBadPrologue
	}
	return Header{
		Type:          MessageType(b[2]),
		ControlCode:   b[3],
		Parameter:     binary.BigEndian.Uint32(b[4:8]),
		PayloadLength: binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

// WriteMessage writes one message to w
func WriteMessage(w io.Writer, h Header, payload []byte) error {
	h.PayloadLength = uint64(len(payload))
	hdr := h.Encode()
	_, err := w.Write(append(hdr[:], payload...))
	return err
}

// ReadMessage reads one message from r
func ReadMessage(r io.Reader) (Header, []byte, error) {
	buf := make([]byte, headerSize)
	_, err := io.ReadFull(r, buf)
	if err != nil {
		return Header{}, nil, err
	}
	h, err := DecodeHeader(buf)
	if err != nil {
		return h, nil, err
	}
	if h.PayloadLength > maxPayload {
		return h, nil, fmt.Errorf("hislip: payload of %d bytes exceeds limit", h.PayloadLength)
	}
	payload := make([]byte, h.PayloadLength)
	_, err = io.ReadFull(r, payload)
	return h, payload, err
}

// ServerError is an Error or FatalError message sent by the server
type ServerError struct {
	Fatal   bool
	Code    byte
	Message string
}

func (e ServerError) Error() string {
	kind := "error"
	if e.Fatal {
		kind = "fatal error"
	}
	return fmt.Sprintf("hislip: server %s %d: %s", kind, e.Code, e.Message)
}

// Conn is a HiSLIP session.  It is not safe for concurrent use.
type Conn struct {
	sync      net.Conn
	async     net.Conn
	sessionID uint16
	messageID uint32
	pending   bytes.Buffer
}

// Dial opens the synchronous and asynchronous channels to addr
// (host or host:port) and performs the Initialize handshake for subAddress.
func Dial(addr, subAddress string, timeout time.Duration) (*Conn, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultPort)
	}
	if subAddress == "" {
		subAddress = DefaultSubAddress
	}
	syncConn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	c := &Conn{sync: syncConn, messageID: firstMessageID}
	syncConn.SetDeadline(time.Now().Add(timeout))
	err = WriteMessage(syncConn, Header{Type: Initialize, Parameter: protocolVersion<<16 | vendorID}, []byte(subAddress))
	if err != nil {
		syncConn.Close()
		return nil, err
	}
	h, _, err := c.expect(syncConn, InitializeResponse)
	if err != nil {
		syncConn.Close()
		return nil, err
	}
	c.sessionID = uint16(h.Parameter & 0xffff)

	asyncConn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		syncConn.Close()
		return nil, err
	}
	c.async = asyncConn
	asyncConn.SetDeadline(time.Now().Add(timeout))
	err = WriteMessage(asyncConn, Header{Type: AsyncInitialize, Parameter: uint32(c.sessionID)}, nil)
	if err == nil {
		_, _, err = c.expect(asyncConn, AsyncInitializeResponse)
	}
	if err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// expect reads one message and checks its type, converting server errors
func (c *Conn) expect(r io.Reader, typ MessageType) (Header, []byte, error) {
	h, payload, err := ReadMessage(r)
	if err != nil {
		return h, payload, err
	}
	switch h.Type {
	case typ:
		return h, payload, nil
	case Error, FatalError:
		return h, payload, ServerError{Fatal: h.Type == FatalError, Code: h.ControlCode, Message: string(payload)}
	}
	return h, payload, fmt.Errorf("hislip: expected message type %d, got %d", typ, h.Type)
}

// SessionID returns the ID assigned by the server during Initialize
func (c *Conn) SessionID() uint16 {
	return c.sessionID
}

// Write sends b as a single DataEnd message
func (c *Conn) Write(b []byte) (int, error) {
	err := WriteMessage(c.sync, Header{Type: DataEnd, Parameter: c.messageID}, b)
	if err != nil {
		return 0, err
	}
	c.messageID += 2
	return len(b), nil
}

// Read returns response bytes, collecting Data messages until DataEnd.
// A response is always delivered \n terminated so line oriented readers
// find its end.
func (c *Conn) Read(p []byte) (int, error) {
	if c.pending.Len() == 0 {
		if err := c.fill(); err != nil {
			return 0, err
		}
	}
	return c.pending.Read(p)
}

// fill reads one complete response into the pending buffer
func (c *Conn) fill() error {
	var msg []byte
	for {
		h, payload, err := ReadMessage(c.sync)
		if err != nil {
			return err
		}
		switch h.Type {
		case Data:
			msg = append(msg, payload...)
		case DataEnd:
			msg = append(msg, payload...)
			if !bytes.HasSuffix(msg, []byte{'\n'}) {
				msg = append(msg, '\n')
			}
			c.pending.Write(msg)
			return nil
		case Error, FatalError:
			return ServerError{Fatal: h.Type == FatalError, Code: h.ControlCode, Message: string(payload)}
		}
		// anything else on the synchronous channel is ignored
	}
}

// SetDeadline sets the read and write deadline of the synchronous channel
func (c *Conn) SetDeadline(t time.Time) error {
	return c.sync.SetDeadline(t)
}

// Close closes both channels
func (c *Conn) Close() error {
	var err error
	if c.async != nil {
		err = c.async.Close()
	}
	if err2 := c.sync.Close(); err2 != nil {
		err = err2
	}
	return err
}
