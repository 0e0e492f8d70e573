package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestLogMeta(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status     int
		wantLevel  slog.Level
		wantResult string
	}{
		{status: 200, wantLevel: slog.LevelInfo, wantResult: "success"},
		{status: 302, wantLevel: slog.LevelInfo, wantResult: "redirect"},
		{status: 404, wantLevel: slog.LevelWarn, wantResult: "client_error"},
		{status: 503, wantLevel: slog.LevelError, wantResult: "server_error"},
	}

	for _, tc := range cases {
		level, result := requestLogMeta(tc.status)
		if level != tc.wantLevel || result != tc.wantResult {
			t.Fatalf("status=%d level=%v result=%q; want level=%v result=%q", tc.status, level, result, tc.wantLevel, tc.wantResult)
		}
	}
}

func TestWithRequestLogging_CapturesStatusAndBytes(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	var seen *loggingResponseWriter
	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		seen = w.(*loggingResponseWriter)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}), log)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/teapot", nil))

	if rr.Code != http.StatusTeapot {
		t.Fatalf("status=%d want=%d", rr.Code, http.StatusTeapot)
	}
	if seen.status != http.StatusTeapot {
		t.Fatalf("captured status=%d want=%d", seen.status, http.StatusTeapot)
	}
	if seen.bytes != int64(len("short and stout")) {
		t.Fatalf("captured bytes=%d want=%d", seen.bytes, len("short and stout"))
	}
}

// WebSocket upgrades hijack the connection; the logging wrapper must not hide
// the optional interfaces of the underlying writer.
func TestLoggingResponseWriter_PreservesOptionalInterfaces(t *testing.T) {
	t.Parallel()

	lrw := &loggingResponseWriter{ResponseWriter: httptest.NewRecorder()}

	var w http.ResponseWriter = lrw
	if _, ok := w.(http.Hijacker); !ok {
		t.Fatalf("Hijacker not exposed")
	}
	if _, ok := w.(http.Flusher); !ok {
		t.Fatalf("Flusher not exposed")
	}
	if _, ok := w.(interface{ Unwrap() http.ResponseWriter }); !ok {
		t.Fatalf("Unwrap not exposed")
	}
}
