package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(ResultOK)
	c.RecordLogin(ResultOK)
	c.RecordLogin(ResultDenied)
	c.RecordRegister(ResultConflict)
	c.RecordGate("expired")
	c.RecordRehash(ResultError)

	if got := testutil.ToFloat64(c.login.WithLabelValues(ResultOK)); got != 2 {
		t.Fatalf("login ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.login.WithLabelValues(ResultDenied)); got != 1 {
		t.Fatalf("login denied = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.register.WithLabelValues(ResultConflict)); got != 1 {
		t.Fatalf("register conflict = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.gate.WithLabelValues("expired")); got != 1 {
		t.Fatalf("gate expired = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.rehash.WithLabelValues(ResultError)); got != 1 {
		t.Fatalf("rehash error = %v, want 1", got)
	}
}

func TestCollector_HTTP(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest(http.MethodGet, 200, 15*time.Millisecond)
	c.RecordHTTPRequest(http.MethodGet, 401, time.Millisecond)

	if got := testutil.ToFloat64(c.requests.WithLabelValues("GET", "200")); got != 1 {
		t.Fatalf("GET 200 = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.duration); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}
}

func TestHandler_Exposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordLogin(ResultOK)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `waypoint_auth_login_total{result="ok"} 1`) {
		t.Fatalf("expected login counter in exposition, got:\n%s", body)
	}
}

func TestNoop(t *testing.T) {
	var r Recorder = Noop{}
	r.RecordLogin(ResultOK)
	r.RecordHTTPRequest("GET", 200, time.Second)
}
