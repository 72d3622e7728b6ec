package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/qmlab/rsscope/generichttp"
)

type table generichttp.RouteTable

func (t table) RT() generichttp.RouteTable { return generichttp.RouteTable(t) }

func TestStem(t *testing.T) {
	for in, expected := range map[string]string{
		"scope":        "/scope",
		"/scope/":      "/scope",
		"lab/scope*":   "/lab/scope",
		"/lab/scope/*": "/lab/scope",
	} {
		if got := Stem(in); got != expected {
			t.Errorf("Stem(%q): expected %q got %q", in, expected, got)
		}
	}
}

func TestBuildMux(t *testing.T) {
	rt := table{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/idn"}: func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("RTO"))
		},
	}
	mux := BuildMux("scope", rt)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scope/idn", nil))
	if w.Body.String() != "RTO" {
		t.Errorf("expected RTO got %q", w.Body.String())
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/endpoints", nil))
	expected := `{"/scope":["GET /idn","GET /lock","POST /lock"]}`
	if body := strings.TrimSpace(w.Body.String()); body != expected {
		t.Errorf("expected %s got %s", expected, body)
	}
}
