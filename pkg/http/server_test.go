package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServerRecordsRequestMetrics(t *testing.T) {
	s := NewServer(nil)

	// First request populates the per-route series; the second scrape must
	// then expose them.
	first := httptest.NewRecorder()
	s.Echo().ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	s.Echo().ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := second.Body.String()
	for _, metric := range []string{
		"http_requests_total",
		"http_request_duration_seconds",
		"http_in_flight_requests",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("scrape output missing %s", metric)
		}
	}
}
