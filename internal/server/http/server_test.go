package http

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/autopeer-io/broute/internal/poller"
	"github.com/autopeer-io/broute/pkg/options"
)

type fakeLatest struct {
	r  poller.Reading
	ok bool
}

func (f *fakeLatest) Get() (poller.Reading, bool) { return f.r, f.ok }

func TestServerRoutes(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 5, 0, time.UTC)
	latest := &fakeLatest{}
	var joined atomic.Bool
	s := NewServer(options.NewHttpOptions(), "meter-1", latest, joined.Load)

	do := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	tests := []struct {
		name     string
		prepare  func()
		method   string
		path     string
		wantCode int
	}{
		{"healthz", func() {}, http.MethodGet, "/healthz", http.StatusOK},
		{"not ready before join", func() {}, http.MethodGet, "/readyz", http.StatusServiceUnavailable},
		{"ready after join", func() { joined.Store(true) }, http.MethodGet, "/readyz", http.StatusOK},
		{"no reading yet", func() {}, http.MethodGet, "/api/v1/readings/latest", http.StatusNoContent},
		{"metrics", func() {}, http.MethodGet, "/metrics", http.StatusOK},
		{"wrong method", func() {}, http.MethodPost, "/healthz", http.StatusMethodNotAllowed},
		{"unknown path", func() {}, http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepare()
			if rec := do(tt.method, tt.path); rec.Code != tt.wantCode {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantCode)
			}
		})
	}

	latest.r, latest.ok = poller.Reading{Time: at, Watts: 540}, true
	rec := do(http.MethodGet, "/api/v1/readings/latest")
	if rec.Code != http.StatusOK {
		t.Fatalf("latest = %d", rec.Code)
	}
	var got ReadingResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(ReadingResponse{MeterID: "meter-1", Time: at, Watts: 540}, got); diff != "" {
		t.Errorf("latest mismatch (-want +got):\n%s", diff)
	}
}

func TestServerServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(options.NewHttpOptions(), "meter-1", &fakeLatest{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancellation")
	}
}
