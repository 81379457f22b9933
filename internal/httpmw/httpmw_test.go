package httpmw

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keithlinneman/sitecontent-web/internal/log"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(ok), mw("a"), nil, mw("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(order, ",") != "a,b" {
		t.Fatalf("order = %v", order)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		hops   int
		want   string
	}{
		{"public peer ignores xff", "203.0.113.5:1000", "198.51.100.1", 1, "203.0.113.5"},
		{"no hops ignores xff", "10.0.0.5:1000", "198.51.100.1", 0, "10.0.0.5"},
		{"one hop takes last", "10.0.0.5:1000", "1.1.1.1, 198.51.100.1", 1, "198.51.100.1"},
		{"two hops", "10.0.0.5:1000", "198.51.100.7, 10.0.0.9", 2, "198.51.100.7"},
		{"too few entries", "10.0.0.5:1000", "198.51.100.1", 2, "10.0.0.5"},
		{"garbage entry", "10.0.0.5:1000", "not-an-ip", 1, "10.0.0.5"},
		{"bad remote", "garbage", "", 0, "0.0.0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := ClientIPWithOptions(ClientIPOptions{TrustedHops: tt.hops})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = ClientIPFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Fatalf("client ip = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID("")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	h.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get("X-Request-Id") != "abc-123" {
		t.Fatalf("incoming id not propagated: %q", seen)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "bad id\nwith newline")
	h.ServeHTTP(rec, req)
	if len(seen) != 32 || strings.ContainsAny(seen, " \n") {
		t.Fatalf("malformed id should be replaced, got %q", seen)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(ok)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "frame-src https://www.youtube.com") {
		t.Fatalf("csp = %q", csp)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing nosniff")
	}
	if rec.Header().Get("Cross-Origin-Embedder-Policy") != "" {
		t.Fatal("COEP would block embeds")
	}
}

type fixedVersion string

func (f fixedVersion) ContentVersion() string { return string(f) }

func TestMappingHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	h := MappingHeaders(fixedVersion("0123456789abcdef0123"))(http.HandlerFunc(ok))
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get("X-Mapping-Version"); got != "0123456789ab" {
		t.Fatalf("X-Mapping-Version = %q", got)
	}

	rec = httptest.NewRecorder()
	MappingHeaders(fixedVersion(""))(http.HandlerFunc(ok)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, set := rec.Header()["X-Mapping-Version"]; set {
		t.Fatal("header set without a version")
	}
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	logger, err := log.New(log.Options{App: "test", JSON: true, Level: slog.LevelInfo, Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	panics := 0
	h := Recover(logger, func() { panics++ })(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rec.Code)
	}
	if panics != 1 {
		t.Fatalf("onPanic calls = %d", panics)
	}
	if !strings.Contains(buf.String(), "httpserver panic recovered") || !strings.Contains(buf.String(), "kaboom") {
		t.Fatalf("log = %s", buf.String())
	}
}

func TestRecover_AbortHandlerPropagates(t *testing.T) {
	h := Recover(nil, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want ErrAbortHandler", r)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(4)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, readErr = r.Body.Read(make([]byte, 16))
		if readErr == nil {
			_, readErr = r.Body.Read(make([]byte, 16))
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	if readErr == nil {
		t.Fatal("expected read error past the limit")
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger, err := log.New(log.Options{App: "test", JSON: true, Level: slog.LevelInfo, Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	inner := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}), RequestID(""), ClientIP, WithLogger(logger), AccessLog())

	inner.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/docs/", nil))
	out := buf.String()
	for _, want := range []string{`"msg":"http request"`, `"url.path":"/docs/"`, `"http.response.body.size":5`, `"request_id":"`} {
		if !strings.Contains(out, want) {
			t.Errorf("access log missing %s: %s", want, out)
		}
	}

	buf.Reset()
	inner.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/-/healthy", nil))
	inner.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/site.css", nil))
	if buf.Len() != 0 {
		t.Fatalf("probe and asset requests should not be logged: %s", buf.String())
	}
}

func TestScope(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := log.New(log.Options{App: "test", JSON: true, Level: slog.LevelInfo, Writer: &buf})
	h := Scope("content")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).Info(context.Background(), "inside")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(log.WithContext(req.Context(), logger))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !strings.Contains(buf.String(), `"handler":"content"`) {
		t.Fatalf("log = %s", buf.String())
	}
}
