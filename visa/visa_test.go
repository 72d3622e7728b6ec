package visa

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestResourceString(t *testing.T) {
	cases := []struct {
		mode     Mode
		addr     string
		expected string
	}{
		{LAN, "192.168.0.10", "TCPIP::192.168.0.10::INSTR"},
		{HiLAN, "192.168.0.10", "TCPIP::192.168.0.10::hislip0"},
		{USB, "0x0AAD::0x01D6::1332.4115K04/200017", "USB::0x0AAD::0x01D6::1332.4115K04/200017::INSTR"},
		{ASRL, "/dev/ttyUSB0", "ASRL/dev/ttyUSB0::INSTR"},
		{"lan", "scope", "TCPIP::scope::INSTR"},
	}
	for _, c := range cases {
		got, err := ResourceString(c.mode, c.addr)
		if err != nil {
			t.Errorf("%s: %v", c.mode, err)
			continue
		}
		if got != c.expected {
			t.Errorf("expected %q got %q", c.expected, got)
		}
	}
	if _, err := ResourceString("GPIB", "7"); err != ErrInvalidMode {
		t.Errorf("expected ErrInvalidMode got %v", err)
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		in       string
		expected Resource
	}{
		{"TCPIP::192.168.0.10::INSTR", Resource{Kind: KindINSTR, Host: "192.168.0.10", Port: SocketPort}},
		{"tcpip0::scope::inst0::INSTR", Resource{}},
		{"TCPIP::scope::hislip0", Resource{Kind: KindHiSLIP, Host: "scope", SubAddress: "hislip0"}},
		{"TCPIP0::scope::HISLIP1::INSTR", Resource{Kind: KindHiSLIP, Host: "scope", SubAddress: "hislip1"}},
		{"TCPIP::scope::5025::SOCKET", Resource{Kind: KindSocket, Host: "scope", Port: "5025"}},
		{"USB::0x0AAD::0x01D6::INSTR", Resource{Kind: KindUSB, Address: "0x0AAD::0x01D6"}},
		{"USB0::0x0AAD::0x01D6::123::INSTR", Resource{Kind: KindUSB, Address: "0x0AAD::0x01D6::123"}},
		{"ASRL/dev/ttyUSB0::INSTR", Resource{Kind: KindASRL, Address: "/dev/ttyUSB0"}},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if c.expected == (Resource{}) {
			if err == nil {
				t.Errorf("%s: expected an error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", c.in, err)
			continue
		}
		if diff := cmp.Diff(c.expected, got); diff != "" {
			t.Errorf("%s: mismatch (-want +got):\n%s", c.in, diff)
		}
	}
}

func TestParseRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"GPIB0::7::INSTR",
		"TCPIP::::INSTR",
		"TCPIP::scope::port::SOCKET",
		"TCPIPx::scope::INSTR",
		"USB::0x0AAD::INSTR",
		"ASRL::INSTR",
	} {
		if _, err := Parse(in); err == nil {
			t.Errorf("%q: expected an error", in)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, in := range []string{
		"TCPIP::scope::INSTR",
		"TCPIP::scope::hislip0",
		"TCPIP::scope::5025::SOCKET",
		"USB::0x0AAD::0x01D6::INSTR",
		"ASRLCOM3::INSTR",
	} {
		r, err := Parse(in)
		if err != nil {
			t.Fatal(err)
		}
		if r.String() != in {
			t.Errorf("expected %q got %q", in, r.String())
		}
	}
}

func TestOpenRejectsBadResource(t *testing.T) {
	if _, err := Open("GPIB0::7::INSTR", time.Second); err == nil {
		t.Error("expected an error for an unsupported interface")
	}
}
