// Package tmc provides an HTTP interface to test and measurement devices
package tmc

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/qmlab/rsscope/generichttp"
	"github.com/qmlab/rsscope/rohde"
)

// Oscilloscope describes a scope that acquires into segmented memory and
// saves its own traces and screenshots
type Oscilloscope interface {
	// Identify returns the *IDN? string
	Identify() (string, error)

	// Acquire takes data in one of the acquisition modes
	Acquire(mode rohde.Mode, n int, auto bool, length float64) error

	// Average runs an averaging acquisition of n traces
	Average(n int) error

	// Calibrate performs a self-alignment
	Calibrate() error

	// SetChannels configures which channels are used
	SetChannels([]int) error

	// GetChannels returns the channels in use
	GetChannels() ([]int, error)

	// SetFileName sets the base name of saved files
	SetFileName(string) error

	// GetFileName returns the base name of saved files
	GetFileName() (string, error)

	// SaveChannels saves the trace on screen
	SaveChannels() error

	// SaveHistory saves every segment in memory
	SaveHistory() error

	// Screenshot saves an image of the display
	Screenshot() error

	// Raw sends a command verbatim
	Raw(string) (string, error)

	// Errors drains the error queue
	Errors() []error
}

// AcquireRequest is the body of POST /acquire
type AcquireRequest struct {
	Mode   string  `json:"mode"`
	N      int     `json:"n"`
	Auto   bool    `json:"auto"`
	Length float64 `json:"length"`
}

// ChannelsT is a struct with a single Channels field
type ChannelsT struct {
	Channels []int `json:"channels"`
}

// ErrorsT is a struct holding a list of error strings
type ErrorsT struct {
	Errors []string `json:"errors"`
}

// replyError maps the error's code to an HTTP status
func replyError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch rohde.CodeOf(err) {
	case rohde.CodeTimeout:
		status = http.StatusGatewayTimeout
	case rohde.CodeConnection:
		status = http.StatusBadGateway
	case rohde.CodeChannelUnavailable:
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

func call(fcn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fcn(); err != nil {
			replyError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Acquire exposes an HTTP interface to the Acquire method.  Missing fields
// default to a single shot with automatic record length.
func Acquire(o Oscilloscope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := AcquireRequest{Mode: string(rohde.Single), N: 1, Auto: true, Length: 5e6}
		err := json.NewDecoder(r.Body).Decode(&req)
		defer r.Body.Close()
		if err != nil && err != io.EOF {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = o.Acquire(rohde.Mode(req.Mode), req.N, req.Auto, req.Length)
		if err != nil {
			replyError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Average exposes an HTTP interface to the Average method, {"int": n}
func Average(o Oscilloscope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i := generichttp.IntT{}
		err := json.NewDecoder(r.Body).Decode(&i)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		call(func() error { return o.Average(i.Int) })(w, r)
	}
}

// GetChannels returns the channels in use as {"channels": [...]}
func GetChannels(o Oscilloscope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chans, err := o.GetChannels()
		if err != nil {
			replyError(w, err)
			return
		}
		generichttp.ReplyWithJSON(w, ChannelsT{chans})
	}
}

// SetChannels sets the channels in use from {"channels": [...]}
func SetChannels(o Oscilloscope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := ChannelsT{}
		err := json.NewDecoder(r.Body).Decode(&c)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = o.SetChannels(c.Channels)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Raw sends {"str": cmd} to the scope and replies {"str": response}
func Raw(o Oscilloscope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := generichttp.StrT{}
		err := json.NewDecoder(r.Body).Decode(&s)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp, err := o.Raw(s.Str)
		if err != nil {
			replyError(w, err)
			return
		}
		generichttp.ReplyWithJSON(w, generichttp.StrT{Str: resp})
	}
}

// Errors drains the scope's error queue and replies {"errors": [...]}
func Errors(o Oscilloscope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		errs := o.Errors()
		strs := make([]string, len(errs))
		for i, e := range errs {
			strs[i] = e.Error()
		}
		generichttp.ReplyWithJSON(w, ErrorsT{strs})
	}
}

// HTTPScope wraps an Oscilloscope in an HTTP route table
type HTTPScope struct {
	// Scope is the underlying oscilloscope
	Scope Oscilloscope

	// RouteTable maps URLs to functions
	RouteTable generichttp.RouteTable
}

// NewHTTPScope returns a new HTTP wrapper around an oscilloscope
func NewHTTPScope(o Oscilloscope) HTTPScope {
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/idn"}:           generichttp.GetString(o.Identify),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/acquire"}:      Acquire(o),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/average"}:      Average(o),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/calibrate"}:    call(o.Calibrate),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/channels"}:      GetChannels(o),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/channels"}:     SetChannels(o),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/file-name"}:     generichttp.GetString(o.GetFileName),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/file-name"}:    generichttp.SetString(o.SetFileName),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/save"}:         call(o.SaveChannels),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/save-history"}: call(o.SaveHistory),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/screenshot"}:   call(o.Screenshot),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/raw"}:          Raw(o),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/errors"}:        Errors(o),
	}
	return HTTPScope{Scope: o, RouteTable: rt}
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPScope) RT() generichttp.RouteTable {
	return h.RouteTable
}
