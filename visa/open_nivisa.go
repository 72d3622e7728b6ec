//go:build nivisa
// +build nivisa

package visa

import (
	"bytes"
	"fmt"
	"io"
	"time"

	vi "github.com/jpoirier/visa"

	"github.com/qmlab/rsscope/comm"
)

// readChunk is the number of bytes requested per viRead
const readChunk = 1 << 16

// session adapts an NI-VISA instrument session to io.ReadWriteCloser
type session struct {
	rm      vi.Session
	instr   vi.Object
	pending bytes.Buffer
}

func (s *session) Write(b []byte) (int, error) {
	n, status := s.instr.Write(b, uint32(len(b)))
	if status < vi.SUCCESS {
		return int(n), fmt.Errorf("visa: write failed with status %x", status)
	}
	return int(n), nil
}

func (s *session) Read(p []byte) (int, error) {
	if s.pending.Len() == 0 {
		b, _, status := s.instr.Read(readChunk)
		if status < vi.SUCCESS {
			return 0, fmt.Errorf("visa: read failed with status %x", status)
		}
		s.pending.Write(b)
	}
	return s.pending.Read(p)
}

func (s *session) Close() error {
	s.instr.Close()
	s.rm.Close()
	return nil
}

// Open returns a function that opens resource through the default NI-VISA
// resource manager.  Timeouts are left to the VISA configuration.
func Open(resource string, timeout time.Duration) (comm.CreationFunc, error) {
	if _, err := Parse(resource); err != nil {
		return nil, err
	}
	return func() (io.ReadWriteCloser, error) {
		rm, status := vi.OpenDefaultRM()
		if status < vi.SUCCESS {
			return nil, fmt.Errorf("visa: could not open the default resource manager, status %x", status)
		}
		instr, status := rm.Open(resource, vi.NULL, vi.NULL)
		if status < vi.SUCCESS {
			rm.Close()
			return nil, fmt.Errorf("visa: could not open %s, status %x", resource, status)
		}
		return &session{rm: rm, instr: instr}, nil
	}, nil
}
