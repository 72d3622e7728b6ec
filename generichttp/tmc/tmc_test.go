package tmc

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"

	"github.com/qmlab/rsscope/rohde"
)

type fakeScope struct {
	calls    []string
	req      AcquireRequest
	channels []int
	name     string
	err      error
}

func (f *fakeScope) Identify() (string, error) {
	return "Rohde&Schwarz,RTO,1332.4115K04/200017,4.70", nil
}

func (f *fakeScope) Acquire(mode rohde.Mode, n int, auto bool, length float64) error {
	f.calls = append(f.calls, "acquire")
	f.req = AcquireRequest{Mode: string(mode), N: n, Auto: auto, Length: length}
	return f.err
}

func (f *fakeScope) Average(n int) error {
	f.calls = append(f.calls, "average")
	f.req.N = n
	return f.err
}

func (f *fakeScope) Calibrate() error             { f.calls = append(f.calls, "calibrate"); return f.err }
func (f *fakeScope) SetChannels(c []int) error    { f.channels = c; return nil }
func (f *fakeScope) GetChannels() ([]int, error)  { return f.channels, nil }
func (f *fakeScope) SetFileName(s string) error   { f.name = s; return nil }
func (f *fakeScope) GetFileName() (string, error) { return f.name, nil }
func (f *fakeScope) SaveChannels() error          { f.calls = append(f.calls, "save"); return f.err }
func (f *fakeScope) SaveHistory() error           { f.calls = append(f.calls, "save-history"); return f.err }
func (f *fakeScope) Screenshot() error            { f.calls = append(f.calls, "screenshot"); return f.err }
func (f *fakeScope) Raw(s string) (string, error) { return "echo " + s, f.err }
func (f *fakeScope) Errors() []error              { return []error{errors.New("-113,Undefined header")} }

func serve(f *fakeScope) http.Handler {
	r := chi.NewRouter()
	NewHTTPScope(f).RT().Bind(r)
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func TestAcquireDefaults(t *testing.T) {
	f := &fakeScope{}
	w := do(serve(f), http.MethodPost, "/acquire", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d %s", w.Code, w.Body)
	}
	expected := AcquireRequest{Mode: "SINGle", N: 1, Auto: true, Length: 5e6}
	if diff := cmp.Diff(expected, f.req); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestAcquireBody(t *testing.T) {
	f := &fakeScope{}
	w := do(serve(f), http.MethodPost, "/acquire", `{"mode":"NSINGle","n":20,"auto":false,"length":1e4}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	expected := AcquireRequest{Mode: "NSINGle", N: 20, Auto: false, Length: 1e4}
	if diff := cmp.Diff(expected, f.req); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestTimeoutMapsToGatewayTimeout(t *testing.T) {
	f := &fakeScope{err: &rohde.Error{Op: "average", Code: rohde.CodeTimeout, Err: rohde.ErrTimeout}}
	w := do(serve(f), http.MethodPost, "/average", `{"int":16}`)
	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504 got %d", w.Code)
	}
	if f.req.N != 16 {
		t.Errorf("expected 16 averages got %d", f.req.N)
	}
}

func TestChannelsRoundTrip(t *testing.T) {
	f := &fakeScope{}
	h := serve(f)
	if w := do(h, http.MethodPost, "/channels", `{"channels":[1,4]}`); w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	w := do(h, http.MethodGet, "/channels", "")
	if body := strings.TrimSpace(w.Body.String()); body != `{"channels":[1,4]}` {
		t.Errorf("unexpected body %s", body)
	}
}

func TestSimpleCalls(t *testing.T) {
	f := &fakeScope{}
	h := serve(f)
	for _, path := range []string{"/calibrate", "/save", "/save-history", "/screenshot"} {
		if w := do(h, http.MethodPost, path, ""); w.Code != http.StatusOK {
			t.Errorf("%s: expected 200 got %d", path, w.Code)
		}
	}
	expected := []string{"calibrate", "save", "save-history", "screenshot"}
	if diff := cmp.Diff(expected, f.calls); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestRawAndErrors(t *testing.T) {
	f := &fakeScope{}
	h := serve(f)
	w := do(h, http.MethodPost, "/raw", `{"str":"*IDN?"}`)
	if body := strings.TrimSpace(w.Body.String()); body != `{"str":"echo *IDN?"}` {
		t.Errorf("unexpected raw reply %s", body)
	}
	w = do(h, http.MethodGet, "/errors", "")
	if body := strings.TrimSpace(w.Body.String()); body != `{"errors":["-113,Undefined header"]}` {
		t.Errorf("unexpected errors reply %s", body)
	}
}
