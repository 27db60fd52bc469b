package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	applog "fintrack/internal/log"
)

func TestMiddleware_AssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	m := NewMiddleware(func(*http.Request) string { return "10.0.0.1" }, logger)

	var seenID string
	var scoped *slog.Logger
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		scoped = applog.FromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/transactions", nil))

	if _, err := uuid.Parse(seenID); err != nil {
		t.Errorf("request id %q is not a uuid", seenID)
	}
	if rec.Header().Get(HeaderRequestID) != seenID {
		t.Errorf("response header = %q, context = %q", rec.Header().Get(HeaderRequestID), seenID)
	}
	if scoped == nil || scoped == slog.Default() {
		t.Error("handler did not receive a request-scoped logger")
	}
	out := buf.String()
	for _, want := range []string{"status_code=201", "client_ip=10.0.0.1", "request_id=" + seenID} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestMiddleware_RequestIDHeader(t *testing.T) {
	m := NewMiddleware(nil, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	incoming := uuid.NewString()
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"valid uuid is kept", incoming, true},
		{"garbage is replaced", "<script>", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set(HeaderRequestID, tt.header)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if got := rec.Header().Get(HeaderRequestID); (got == tt.header) != tt.keep {
				t.Errorf("response id = %q", got)
			}
		})
	}
}

func TestMiddleware_Metrics(t *testing.T) {
	m := NewMiddleware(nil, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	codes := []int{200, 500, 404, 503}
	i := 0
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(codes[i])
		i++
	}))
	for range codes {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	got := m.GetMetrics()
	if got.TotalRequests != 4 || got.ServerErrors != 2 {
		t.Errorf("GetMetrics() = %+v", got)
	}
}
