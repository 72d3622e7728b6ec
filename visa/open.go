//go:build !nivisa
// +build !nivisa

package visa

import (
	"io"
	"time"

	"github.com/qmlab/rsscope/comm"
	"github.com/qmlab/rsscope/hislip"
	"github.com/qmlab/rsscope/usbtmc"
)

// Open returns a function that creates connections to resource.  Nothing
// is dialed until the function is called.
func Open(resource string, timeout time.Duration) (comm.CreationFunc, error) {
	r, err := Parse(resource)
	if err != nil {
		return nil, err
	}
	switch r.Kind {
	case KindINSTR, KindSocket:
		return comm.BackingOffTCPConnMaker(r.Addr(), timeout), nil
	case KindHiSLIP:
		return func() (io.ReadWriteCloser, error) {
			return hislip.Dial(r.Host, r.SubAddress, timeout)
		}, nil
	case KindUSB:
		addr, err := usbtmc.ParseAddress(r.Address)
		if err != nil {
			return nil, err
		}
		return func() (io.ReadWriteCloser, error) {
			return usbtmc.Open(addr)
		}, nil
	default:
		return comm.SerialConnMaker(r.Address, SerialBaud, timeout), nil
	}
}
