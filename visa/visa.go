/*
Package visa builds and parses VISA resource strings and opens the
transport each one names.

Supported resources:

	TCPIP[board]::<host>::INSTR          raw SCPI socket, port 5025
	TCPIP[board]::<host>::hislip<n>      HiSLIP, port 4880
	TCPIP[board]::<host>::<port>::SOCKET raw SCPI socket on <port>
	USB[board]::<vid>::<pid>[::<serial>]::INSTR  USBTMC
	ASRL<port>::INSTR                    serial, 115200 8N1

Building with the nivisa tag routes every resource through an installed
NI-VISA library instead.
*/
package visa

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Mode is a connection mode understood by ResourceString
type Mode string

const (
	// LAN is a plain LAN connection
	LAN Mode = "LAN"

	// HiLAN is a high-speed LAN (HiSLIP) connection
	HiLAN Mode = "hiLAN"

	// USB is a USBTMC connection
	USB Mode = "USB"

	// ASRL is a serial connection
	ASRL Mode = "ASRL"
)

// Kind classifies a parsed resource
type Kind int

const (
	// KindINSTR is a LAN instrument served over a raw socket
	KindINSTR Kind = iota
	// KindHiSLIP is a HiSLIP server
	KindHiSLIP
	// KindSocket is a raw socket on an explicit port
	KindSocket
	// KindUSB is a USBTMC device
	KindUSB
	// KindASRL is a serial port
	KindASRL
)

const (
	// SocketPort is the raw SCPI port used for TCPIP INSTR resources
	SocketPort = "5025"

	// SerialBaud is the baud rate used for ASRL resources
	SerialBaud = 115200
)

// ErrInvalidMode is generated when ResourceString is given an unknown mode
var ErrInvalidMode = errors.New("visa: invalid connection mode, use LAN, hiLAN, USB or ASRL")

// ResourceString returns the VISA resource string for addr under mode
func ResourceString(mode Mode, addr string) (string, error) {
	switch Mode(strings.ToLower(string(mode))) {
	case "lan":
		return "TCPIP::" + addr + "::INSTR", nil
	case "hilan":
		return "TCPIP::" + addr + "::hislip0", nil
	case "usb":
		return "USB::" + addr + "::INSTR", nil
	case "asrl":
		return "ASRL" + addr + "::INSTR", nil
	}
	return "", ErrInvalidMode
}

// Resource is a parsed VISA resource string
type Resource struct {
	Kind Kind

	// Host is the network host for TCPIP resources
	Host string

	// Port is the TCP port for INSTR and SOCKET resources
	Port string

	// SubAddress is the HiSLIP sub-address, e.g. hislip0
	SubAddress string

	// Address is the USB "vid::pid[::serial]" or the serial port name
	Address string
}

// Addr returns host:port for network resources
func (r Resource) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

// String returns the canonical resource string
func (r Resource) String() string {
	switch r.Kind {
	case KindINSTR:
		return "TCPIP::" + r.Host + "::INSTR"
	case KindHiSLIP:
		return "TCPIP::" + r.Host + "::" + r.SubAddress
	case KindSocket:
		return "TCPIP::" + r.Host + "::" + r.Port + "::SOCKET"
	case KindUSB:
		return "USB::" + r.Address + "::INSTR"
	case KindASRL:
		return "ASRL" + r.Address + "::INSTR"
	}
	return ""
}

// Parse parses a VISA resource string.  Interface names and resource
// classes are matched without regard to case.
func Parse(s string) (Resource, error) {
	var r Resource
	pieces := strings.Split(strings.TrimSpace(s), "::")
	if len(pieces) < 2 {
		return r, fmt.Errorf("visa: resource %q has too few fields", s)
	}
	iface := strings.ToUpper(pieces[0])
	class := strings.ToUpper(pieces[len(pieces)-1])
	switch {
	case strings.HasPrefix(iface, "TCPIP"):
		if !boardNumber(iface[len("TCPIP"):]) {
			return r, fmt.Errorf("visa: bad TCPIP board in %q", s)
		}
		if len(pieces) < 3 || pieces[1] == "" {
			return r, fmt.Errorf("visa: resource %q has no host", s)
		}
		r.Host = pieces[1]
		switch {
		case class == "SOCKET":
			if len(pieces) != 4 {
				return r, fmt.Errorf("visa: socket resource %q needs a port", s)
			}
			if _, err := strconv.ParseUint(pieces[2], 10, 16); err != nil {
				return r, fmt.Errorf("visa: bad port in %q", s)
			}
			r.Kind, r.Port = KindSocket, pieces[2]
		case len(pieces) == 3 && class == "INSTR":
			r.Kind, r.Port = KindINSTR, SocketPort
		case len(pieces) == 3 && strings.HasPrefix(strings.ToLower(pieces[2]), "hislip"):
			r.Kind, r.SubAddress = KindHiSLIP, strings.ToLower(pieces[2])
		case len(pieces) == 4 && class == "INSTR" && strings.HasPrefix(strings.ToLower(pieces[2]), "hislip"):
			r.Kind, r.SubAddress = KindHiSLIP, strings.ToLower(pieces[2])
		default:
			return r, fmt.Errorf("visa: unsupported TCPIP resource %q", s)
		}
	case strings.HasPrefix(iface, "USB"):
		if !boardNumber(iface[len("USB"):]) {
			return r, fmt.Errorf("visa: bad USB board in %q", s)
		}
		if class != "INSTR" || len(pieces) < 4 || len(pieces) > 5 {
			return r, fmt.Errorf("visa: USB resource %q must be USB::vid::pid[::serial]::INSTR", s)
		}
		r.Kind, r.Address = KindUSB, strings.Join(pieces[1:len(pieces)-1], "::")
	case strings.HasPrefix(iface, "ASRL"):
		if class != "INSTR" || len(pieces) != 2 || len(pieces[0]) == len("ASRL") {
			return r, fmt.Errorf("visa: serial resource %q must be ASRL<port>::INSTR", s)
		}
		r.Kind, r.Address = KindASRL, pieces[0][len("ASRL"):]
	default:
		return r, fmt.Errorf("visa: unsupported interface %q", pieces[0])
	}
	return r, nil
}

// boardNumber reports whether s is empty or a decimal board index
func boardNumber(s string) bool {
	if s == "" {
		return true
	}
	_, err := strconv.Atoi(s)
	return err == nil
}
