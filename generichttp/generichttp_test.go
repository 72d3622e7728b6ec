package generichttp

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"
)

func TestEndpointsSorted(t *testing.T) {
	noop := func(w http.ResponseWriter, r *http.Request) {}
	rt := RouteTable{
		MethodPath{http.MethodPost, "/save"}:     noop,
		MethodPath{http.MethodPost, "/channels"}: noop,
		MethodPath{http.MethodGet, "/channels"}:  noop,
	}
	expected := []string{"GET /channels", "POST /channels", "POST /save"}
	if diff := cmp.Diff(expected, rt.Endpoints()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestBindAndRoundTrip(t *testing.T) {
	var stored string
	rt := RouteTable{
		MethodPath{http.MethodGet, "/name"}:  GetString(func() (string, error) { return "scope", nil }),
		MethodPath{http.MethodPost, "/name"}: SetString(func(s string) error { stored = s; return nil }),
		MethodPath{http.MethodPost, "/fail"}: Call(func() error { return errors.New("boom") }),
	}
	r := chi.NewRouter()
	rt.Bind(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/name", nil))
	if body := strings.TrimSpace(w.Body.String()); body != `{"str":"scope"}` {
		t.Errorf("expected {\"str\":\"scope\"} got %s", body)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/name", strings.NewReader(`{"str":"shot"}`)))
	if w.Code != http.StatusOK || stored != "shot" {
		t.Errorf("expected 200 and shot, got %d and %q", w.Code, stored)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/name", strings.NewReader(`not json`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed body, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/fail", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 got %d", w.Code)
	}
}

func TestHumanPayloadFloat(t *testing.T) {
	w := httptest.NewRecorder()
	GetFloat(func() (float64, error) { return 1.5, nil })(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if body := strings.TrimSpace(w.Body.String()); body != `{"f64":1.5}` {
		t.Errorf("expected {\"f64\":1.5} got %s", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json got %s", ct)
	}
}
