package locker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi"

	"github.com/qmlab/rsscope/generichttp"
)

type table generichttp.RouteTable

func (t table) RT() generichttp.RouteTable { return generichttp.RouteTable(t) }

func TestLockedReturns423(t *testing.T) {
	l := New()
	rt := table{generichttp.MethodPath{Method: http.MethodPost, Path: "/acquire"}: func(w http.ResponseWriter, r *http.Request) {}}
	Inject(rt, l)
	r := chi.NewRouter()
	r.Use(l.Check)
	rt.RT().Bind(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/lock", strings.NewReader(`{"bool":true}`)))
	if w.Code != http.StatusOK || !l.Locked() {
		t.Fatalf("expected the lock to be taken, got %d", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/acquire", nil))
	if w.Code != http.StatusLocked {
		t.Errorf("expected 423 got %d", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/lock", nil))
	if body := strings.TrimSpace(w.Body.String()); body != `{"bool":true}` {
		t.Errorf("expected the lock route to stay reachable, got %d %s", w.Code, body)
	}
}

func TestCheckSerialisesRequests(t *testing.T) {
	l := New()
	var active, maxActive int32
	h := l.Check(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
	}))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/acquire", nil))
		}()
	}
	wg.Wait()
	if maxActive != 1 {
		t.Errorf("expected one request at a time, saw %d", maxActive)
	}
}
