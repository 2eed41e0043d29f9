package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matches(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func matches(m *dto.Metric, labels map[string]string) bool {
	for _, lp := range m.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
			return false
		}
	}
	return true
}

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(LoginOK)
	c.RecordLogin(LoginOK)
	c.RecordLogin(LoginFailed)
	c.RecordOTPVerification(true)
	c.RecordOTPVerification(false)
	c.RecordOTPVerification(false)
	c.RecordNoteAccessDenied("get")

	if v := counterValue(t, reg, "securenotes_logins_total", map[string]string{"result": LoginOK}); v != 2 {
		t.Errorf("logins ok = %v, want 2", v)
	}
	if v := counterValue(t, reg, "securenotes_logins_total", map[string]string{"result": LoginFailed}); v != 1 {
		t.Errorf("logins failed = %v, want 1", v)
	}
	if v := counterValue(t, reg, "securenotes_otp_verifications_total", map[string]string{"result": "invalid"}); v != 2 {
		t.Errorf("otp invalid = %v, want 2", v)
	}
	if v := counterValue(t, reg, "securenotes_note_access_denied_total", map[string]string{"op": "get"}); v != 1 {
		t.Errorf("denied get = %v, want 1", v)
	}
}

func TestCollector_HTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest(http.MethodGet, 404, 5*time.Millisecond)
	if v := counterValue(t, reg, "securenotes_http_requests_total", map[string]string{"method": "GET", "status": "404"}); v != 1 {
		t.Errorf("http 404 = %v, want 1", v)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordLogin(LoginOK)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "securenotes_logins_total") {
		t.Errorf("body does not contain login counter")
	}
}
