package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveAttempt(t *testing.T) {
	m := New()
	m.ObserveAttempt("catbox", "failure", time.Second)
	m.ObserveAttempt("catbox", "failure", time.Second)
	m.ObserveAttempt("pixeldrain", "success", time.Second)
	m.ObserveAttempt("s3", "skipped", 0)

	tests := []struct {
		provider, outcome string
		want              float64
	}{
		{"catbox", "failure", 2},
		{"pixeldrain", "success", 1},
		{"s3", "skipped", 1},
		{"s3", "success", 0},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(m.attempts.WithLabelValues(tt.provider, tt.outcome))
		if got != tt.want {
			t.Errorf("attempts{%s,%s} = %v, want %v", tt.provider, tt.outcome, got, tt.want)
		}
	}
	if n := testutil.CollectAndCount(m.attemptDuration); n != 2 {
		t.Errorf("attempt duration series = %d, want 2", n)
	}
}

func TestObserveUpload(t *testing.T) {
	m := New()
	m.ObserveUpload(10, false)
	m.ObserveUpload(10, true)
	m.ObserveUpload(5, false)

	if got := testutil.ToFloat64(m.uploads.WithLabelValues("false")); got != 2 {
		t.Errorf("fresh uploads = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.uploads.WithLabelValues("true")); got != 1 {
		t.Errorf("deduplicated uploads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.uploadBytes); got != 15 {
		t.Errorf("upload bytes = %v, want 15", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/f/{id}/{filename}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	for _, path := range []string{"/f/aaa/x.txt", "/f/bbb/y.txt", "/health"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/f/{id}/{filename}", "404")); got != 2 {
		t.Errorf("object requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/health", "200")); got != 1 {
		t.Errorf("health requests = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveAttempt("local", "success", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `refile_chain_attempts_total{outcome="success",provider="local"} 1`) {
		t.Errorf("exposition missing attempt counter:\n%s", body)
	}
}
