/*
Package usbtmc implements datagram encoding and decoding for USB Test and
Measurement Class devices, and exposes a device as an io.ReadWriteCloser.

It does not implement the interrupt endpoint, READ_STATUS_BYTE, or the
abort/clear control requests.

To send a message:
1.  Allocate a send buffer
2.  Write the header to it
3.  Write your data to it
4.  Ensure that the total transmission size is a multiple of 4 bytes before flushing

To receive a message:
 1. Create a read header and send it on the Out endpoint
 2. Read from the In endpoint, strip the header, and repeat until the
    header's EOM bit is set

These macros are implemented as Write() and Read() on the concrete USB type defined in this package.
*/
package usbtmc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/gousb"
)

const (
	// reserved is the byte to insert in reserved header fields
	reserved = 0x00

	headerSize = 12

	msgDevDepMsgOut       = 0x01
	msgRequestDevDepMsgIn = 0x02
	msgDevDepMsgIn        = 0x02
	alignment             = 4
	defaultTransferSize   = 1 << 20
	bitEOM                = 0x01
	bitTermCharEnabled    = 0x02
)

// ErrDeviceNotFound is generated when no attached device matches the address
var ErrDeviceNotFound = errors.New("usbtmc: no matching device found")

// BTagger can generate atomic bTags
type BTagger interface {
	nextbTag() byte
}

// bTagGen is a concurrent-safe bTag generator
type bTagGen struct {
	// embedded mutex for concurrent safety
	sync.Mutex

	value byte
	min   byte
}

func newBTagGen() *bTagGen {
	return &bTagGen{value: 0, min: 1}
}

// nextbTag returns 1..255, wrapping around and skipping zero
func (b *bTagGen) nextbTag() byte {
	b.Lock()
	defer b.Unlock()
	b.value++
	if b.value < b.min {
		b.value = b.min
	}
	return b.value
}

// invbTag computes the bitwise inversion of a btag, per USBTMC standard table 1 offset 2
func invbTag(b byte) byte {
	// ^ is bitwise exclusive OR.  Comparing with 0xff (all 1s) is the bitwise inversion
	return b ^ 0xff
}

// encBulkOutHeader creates the header defined in USBTMC standard, Table 3
func encBulkOutHeader(tag byte, datalen int) [headerSize]byte {
	out := [headerSize]byte{}
	/* data map by offset:
	0 MsgID, DEV_DEP_MSG_OUT
	1 bTag, a single byte 1 < x < 255, unique and incrementing with each message
	2 bTagInverse, a single byte, the bitwise inverse of bTag
	3 Reserved (0x00)
	4-7 transferSize, LSB first, exclusive of header and alignment
	8 bitmap, bit 0 EOM
	9-11 reserved
	*/
	out[0] = msgDevDepMsgOut
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(datalen))
	out[8] = bitEOM // every message is sent in one transfer
	return out
}

// encBulkInHeader creates the header defined in USBTMC standard, Table 4.
// if terminator is nil, puts 0x00 in the header and sets the bit to use it to false
func encBulkInHeader(tag byte, bufsize int, terminator *byte) [headerSize]byte {
	out := [headerSize]byte{}
	out[0] = msgRequestDevDepMsgIn
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(bufsize))
	if terminator != nil {
		out[8] = bitTermCharEnabled
		out[9] = *terminator
	}
	return out
}

// bulkInHeader is the decoded header of a DEV_DEP_MSG_IN transfer
type bulkInHeader struct {
	tag          byte
	transferSize int
	eom          bool
}

func decBulkInHeader(b []byte) (bulkInHeader, error) {
	var h bulkInHeader
	if len(b) < headerSize {
		return h, fmt.Errorf("usbtmc: only received %d bytes, need at least %d to form header", len(b), headerSize)
	}
	if b[0] != msgDevDepMsgIn {
		return h, fmt.Errorf("usbtmc: unexpected MsgID %#x in bulk-in header", b[0])
	}
	if b[2] != invbTag(b[1]) {
		return h, fmt.Errorf("usbtmc: bTag %#x and inverse %#x disagree", b[1], b[2])
	}
	h.tag = b[1]
	h.transferSize = int(binary.LittleEndian.Uint32(b[4:8]))
	h.eom = b[8]&bitEOM != 0
	return h, nil
}

// frameOut builds a complete, aligned bulk-out transfer for payload
func frameOut(tag byte, payload []byte) []byte {
	hdr := encBulkOutHeader(tag, len(payload))
	b := append(hdr[:], payload...)
	if residual := len(b) % alignment; residual > 0 {
		b = append(b, make([]byte, alignment-residual)...)
	}
	return b
}

// Address identifies a device on the bus
type Address struct {
	VendorID  uint16
	ProductID uint16
	Serial    string
}

// ParseAddress parses the middle of a VISA USB resource string,
// "0x0AAD::0x01D6[::serial]"
func ParseAddress(s string) (Address, error) {
	var a Address
	pieces := strings.Split(s, "::")
	if len(pieces) < 2 {
		return a, fmt.Errorf("usbtmc: address %q needs at least vendor and product ID", s)
	}
	vid, err := strconv.ParseUint(pieces[0], 0, 16)
	if err != nil {
		return a, fmt.Errorf("usbtmc: vendor ID %q: %w", pieces[0], err)
	}
	pid, err := strconv.ParseUint(pieces[1], 0, 16)
	if err != nil {
		return a, fmt.Errorf("usbtmc: product ID %q: %w", pieces[1], err)
	}
	a.VendorID, a.ProductID = uint16(vid), uint16(pid)
	if len(pieces) > 2 {
		a.Serial = pieces[2]
	}
	return a, nil
}

// USBDevice is a struct hiding the details of USB and exposing an io.ReadWriteCloser interface
type USBDevice struct {
	tagger  BTagger
	ctx     *gousb.Context
	device  *gousb.Device
	iface   *gousb.Interface
	closer  func()
	in      *gousb.InEndpoint
	out     *gousb.OutEndpoint
	pending bytes.Buffer

	// TermChar, if not nil, asks the device to end transfers on this byte
	TermChar *byte
}

// Open finds and claims the device at addr
func Open(addr Address) (*USBDevice, error) {
	ctx := gousb.NewContext()
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == addr.VendorID && uint16(desc.Product) == addr.ProductID
	})
	if err != nil && len(devs) == 0 {
		ctx.Close()
		return nil, err
	}
	var dev *gousb.Device
	for _, d := range devs {
		if dev == nil && addr.Serial == "" {
			dev = d
			continue
		}
		if dev == nil {
			if sn, err := d.SerialNumber(); err == nil && sn == addr.Serial {
				dev = d
				continue
			}
		}
		d.Close()
	}
	if dev == nil {
		ctx.Close()
		return nil, ErrDeviceNotFound
	}
	d := &USBDevice{tagger: newBTagGen(), ctx: ctx, device: dev}
	if err := d.claim(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// claim locates the USBTMC interface and its bulk endpoints
func (d *USBDevice) claim() error {
	err := d.device.SetAutoDetach(true)
	if err != nil {
		return err
	}
	d.iface, d.closer, err = d.device.DefaultInterface()
	if err != nil {
		return err
	}
	inNum, outNum := -1, -1
	for _, ep := range d.iface.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn && inNum == -1 {
			inNum = ep.Number
		}
		if ep.Direction == gousb.EndpointDirectionOut && outNum == -1 {
			outNum = ep.Number
		}
	}
	if inNum == -1 || outNum == -1 {
		return fmt.Errorf("usbtmc: interface %s has no bulk endpoint pair", d.iface)
	}
	d.in, err = d.iface.InEndpoint(inNum)
	if err != nil {
		return err
	}
	d.out, err = d.iface.OutEndpoint(outNum)
	return err
}

// Write sends b as a single DEV_DEP_MSG_OUT transfer with EOM set
func (d *USBDevice) Write(b []byte) (int, error) {
	_, err := d.out.Write(frameOut(d.tagger.nextbTag(), b))
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Read requests data from the device until a transfer with EOM arrives,
// then serves it from an internal buffer
func (d *USBDevice) Read(p []byte) (int, error) {
	if d.pending.Len() == 0 {
		if err := d.fill(); err != nil {
			return 0, err
		}
	}
	return d.pending.Read(p)
}

func (d *USBDevice) fill() error {
	buf := make([]byte, headerSize+defaultTransferSize+alignment)
	for {
		tag := d.tagger.nextbTag()
		hdr := encBulkInHeader(tag, defaultTransferSize, d.TermChar)
		_, err := d.out.Write(hdr[:])
		if err != nil {
			return err
		}
		n, err := d.in.Read(buf)
		if err != nil {
			return err
		}
		h, err := decBulkInHeader(buf[:n])
		if err != nil {
			return err
		}
		if h.tag != tag {
			return fmt.Errorf("usbtmc: response bTag %d does not match request %d", h.tag, tag)
		}
		data := buf[headerSize:n]
		// a transfer larger than one packet may arrive over several reads
		for len(data) < h.transferSize {
			m, err := d.in.Read(buf[n:])
			if err != nil {
				return err
			}
			n += m
			data = buf[headerSize:n]
		}
		d.pending.Write(data[:h.transferSize])
		if h.eom {
			return nil
		}
	}
}

// Close releases the interface and closes the device
func (d *USBDevice) Close() error {
	if d.closer != nil {
		d.closer()
	}
	var err error
	if d.device != nil {
		err = d.device.Close()
	}
	if d.ctx != nil {
		if err2 := d.ctx.Close(); err == nil {
			err = err2
		}
	}
	return err
}
