package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *SettlementMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics handler got %d", rec.Code)
	}
	return rec.Body.String()
}

func TestSettlementMetricsCollects(t *testing.T) {
	m := NewSettlementMetrics()
	m.RecordWithdrawal("processing")
	m.RecordCallback("daraja_result", "applied")
	m.ObserveProvider("paystack", 120*time.Millisecond, nil)
	m.ObserveProvider("paystack", 50*time.Millisecond, errors.New("boom"))

	body := scrape(t, m)
	for _, want := range []string{
		`settlement_withdrawals_total{outcome="processing"} 1`,
		`settlement_callbacks_total{kind="daraja_result",outcome="applied"} 1`,
		`settlement_provider_transfer_latency_seconds_count{outcome="accepted",provider="paystack"} 1`,
		`settlement_provider_transfer_latency_seconds_count{outcome="error",provider="paystack"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in scrape output:\n%s", want, body)
		}
	}
}

func TestMiddlewareCountsRequests(t *testing.T) {
	m := NewSettlementMetrics()
	handler := m.Middleware("balance")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/balance", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("middleware must pass the status through, got %d", rec.Code)
	}
	if !strings.Contains(scrape(t, m), `settlement_requests_total{method="GET",route="balance"`) {
		t.Fatal("expected request counter in scrape output")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *SettlementMetrics
	m.RecordWithdrawal("completed")
	m.RecordCallback("paystack", "applied")
	m.ObserveProvider("daraja", time.Millisecond, nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("nil metrics handler should 404, got %d", rec.Code)
	}
}

func TestTwoInstancesDoNotCollide(t *testing.T) {
	a := NewSettlementMetrics()
	b := NewSettlementMetrics()
	a.RecordWithdrawal("completed")
	if strings.Contains(scrape(t, b), `settlement_withdrawals_total{outcome="completed"}`) {
		t.Fatal("registries must be isolated per instance")
	}
}
