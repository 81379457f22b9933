package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/sitecontent-web/internal/content"
	"github.com/keithlinneman/sitecontent-web/internal/contentapi"
	"github.com/keithlinneman/sitecontent-web/internal/fetch"
	"github.com/keithlinneman/sitecontent-web/internal/log"
	"github.com/keithlinneman/sitecontent-web/internal/mapping"
	"github.com/keithlinneman/sitecontent-web/internal/objectstore"
	"github.com/keithlinneman/sitecontent-web/internal/resolve"
	"github.com/keithlinneman/sitecontent-web/internal/sitehandler"
	"github.com/keithlinneman/sitecontent-web/internal/webassets"
)

// test helpers

type stubProbe struct{ err error }

func (p *stubProbe) Check(context.Context) error { return p.err }

// memStore is an objectstore.Store over a key->body map.
type memStore map[string]string

func (m memStore) GetObject(_ context.Context, _, key string) (*objectstore.Object, error) {
	body, ok := m[key]
	if !ok {
		return nil, objectstore.ErrNotFound
	}
	ct := "text/html; charset=utf-8"
	if strings.HasSuffix(key, ".css") {
		ct = "text/css"
	}
	return &objectstore.Object{Key: key, Body: []byte(body), ContentType: ct, ETag: `"` + key + `"`}, nil
}

func defaultOpts() Options {
	return Options{Logger: log.Nop()}
}

func doRequest(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func getFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", ":0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// siteOpts wires the real content path: mappings -> resolver -> fetcher ->
// site handler, plus the content API, against an in-memory store.
func siteOpts(t *testing.T, store objectstore.Store) (Options, *content.Manager) {
	t.Helper()
	mgr := content.NewManager()
	mgr.Set(content.NewSnapshot([]mapping.Entry{
		{SitePath: "/", S3Path: "static"},
		{SitePath: "/docs", S3Path: "manuals"},
	}, content.SourceStatic))

	f, err := fetch.New(fetch.Options{Store: store, Bucket: "site", Resolver: resolve.New(mgr)})
	if err != nil {
		t.Fatalf("fetch.New: %v", err)
	}
	site, err := sitehandler.New(&sitehandler.Options{Fetcher: f, FallbackFS: webassets.FallbackFS()})
	if err != nil {
		t.Fatalf("sitehandler.New: %v", err)
	}

	opts := defaultOpts()
	opts.SiteHandler = site
	opts.MappingInfo = mgr
	opts.APIRoutes = contentapi.NewAPI(mgr, log.Nop()).RegisterRoutes
	return opts, mgr
}

// NewHandler - middleware stack

func TestNewHandler_SecurityHeaders(t *testing.T) {
	h := NewHandler(defaultOpts())
	for _, p := range []string{"/anything", "/-/ready"} {
		rec := doRequest(t, h, "GET", p)
		for _, hdr := range []string{
			"Strict-Transport-Security",
			"Content-Security-Policy",
			"X-Content-Type-Options",
			"X-Frame-Options",
			"Referrer-Policy",
			"Cross-Origin-Opener-Policy",
		} {
			if rec.Header().Get(hdr) == "" {
				t.Errorf("%s: missing security header %s", p, hdr)
			}
		}
	}
}

func TestNewHandler_RequestID(t *testing.T) {
	h := NewHandler(defaultOpts())

	rec := doRequest(t, h, "GET", "/")
	if id := rec.Header().Get("X-Request-Id"); len(id) != 32 {
		t.Fatalf("generated X-Request-Id = %q, want 32 hex chars", id)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-Id", "edge-7f3a")
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "edge-7f3a" {
		t.Fatalf("X-Request-Id = %q, want upstream id", got)
	}
}

func TestNewHandler_Recover(t *testing.T) {
	panics := 0
	opts := defaultOpts()
	opts.UseRecoverMW = true
	opts.OnPanic = func() { panics++ }
	opts.SiteHandler = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := doRequest(t, NewHandler(opts), "GET", "/crash")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if panics != 1 {
		t.Fatalf("OnPanic calls = %d", panics)
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Fatal("security headers missing on recovered panic")
	}
}

func TestNewHandler_MiddlewareOrder(t *testing.T) {
	var calls []string
	opts := defaultOpts()
	opts.RateLimitMW = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls = append(calls, "ratelimit")
			next.ServeHTTP(w, r)
		})
	}
	opts.MetricsMW = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls = append(calls, "metrics")
			next.ServeHTTP(w, r)
		})
	}

	doRequest(t, NewHandler(opts), "GET", "/")
	if strings.Join(calls, ",") != "ratelimit,metrics" {
		t.Fatalf("calls = %v, want rate limiting before metrics", calls)
	}
}

func TestNewHandler_RateLimitShortCircuits(t *testing.T) {
	opts := defaultOpts()
	opts.RateLimitMW = func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	opts.SiteHandler = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("site handler reached past the limiter")
	})
	if rec := doRequest(t, NewHandler(opts), "GET", "/"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestNewHandler_MaxBody(t *testing.T) {
	opts := defaultOpts()
	opts.APIRoutes = func(r chi.Router) {
		r.Post("/api/echo", func(w http.ResponseWriter, r *http.Request) {
			if _, err := io.ReadAll(r.Body); err != nil {
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/echo", strings.NewReader(strings.Repeat("x", 4096)))
	NewHandler(opts).ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

// NewHandler - routing

func TestNewHandler_ProbeRoutes(t *testing.T) {
	opts := defaultOpts()
	opts.Health = &stubProbe{}
	opts.Readiness = &stubProbe{err: errors.New("content: no active snapshot")}
	opts.SiteHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("site"))
	})
	h := NewHandler(opts)

	rec := doRequest(t, h, "GET", "/-/healthy")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("healthy = %d %q", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, h, "GET", "/-/ready")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "no active snapshot") {
		t.Fatalf("ready = %d %q", rec.Code, rec.Body.String())
	}
}

func TestNewHandler_NoSiteHandler(t *testing.T) {
	rec := doRequest(t, NewHandler(defaultOpts()), "GET", "/unknown")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want chi default 404", rec.Code)
	}
}

func TestNewHandler_ServesMappedContent(t *testing.T) {
	store := memStore{
		"static/index.html":        "<h1>home</h1>",
		"static/css/site.css":      "body{}",
		"manuals/install.html":     "<h1>install</h1>",
		"manuals/guide/index.html": "<h1>guide</h1>",
	}
	opts, mgr := siteOpts(t, store)
	h := NewHandler(opts)

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/", http.StatusOK, "home"},
		{"/css/site.css", http.StatusOK, "body{}"},
		{"/docs/install.html", http.StatusOK, "install"},
		{"/docs/guide/", http.StatusOK, "guide"},
		{"/missing.html", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		rec := doRequest(t, h, "GET", tt.path)
		if rec.Code != tt.wantCode {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.wantCode)
			continue
		}
		if !strings.Contains(rec.Body.String(), tt.wantBody) {
			t.Errorf("GET %s body = %q", tt.path, rec.Body.String())
		}
		if got, want := rec.Header().Get("X-Mapping-Version"), mgr.ContentVersion()[:12]; got != want {
			t.Errorf("GET %s X-Mapping-Version = %q, want %q", tt.path, got, want)
		}
	}
}

func TestNewHandler_ContentAPI(t *testing.T) {
	opts, _ := siteOpts(t, memStore{})
	h := NewHandler(opts)

	rec := doRequest(t, h, "GET", "/api/content/resolve?path=/docs/a.html")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "manuals/a.html") {
		t.Fatalf("resolve body = %s", rec.Body.String())
	}

	rec = doRequest(t, h, "POST", "/api/content/mappings")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST to API route = %d, want 405 from the site handler", rec.Code)
	}
}

func TestShouldTrace(t *testing.T) {
	tests := map[string]bool{
		"/":             true,
		"/docs/":        true,
		"/-/ready":      false,
		"/favicon.ico":  false,
		"/css/site.CSS": false,
		"/img/logo.png": false,
		"/post.md":      true,
	}
	for p, want := range tests {
		if got := shouldTrace(p); got != want {
			t.Errorf("shouldTrace(%q) = %v, want %v", p, got, want)
		}
	}
}

// Start - lifecycle

func TestStart_ServesAndStops(t *testing.T) {
	port := getFreePort(t)
	opts := defaultOpts()
	opts.Port = port
	opts.Health = &stubProbe{}

	stop, err := Start(context.Background(), opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/-/healthy", port)
	var resp *http.Response
	for range 50 {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	if err := stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := stop(context.Background()); err != nil {
		t.Fatalf("second stop should be a no-op: %v", err)
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp4", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	opts := defaultOpts()
	opts.Port = ln.Addr().(*net.TCPAddr).Port
	if _, err := Start(context.Background(), opts); err == nil {
		t.Fatal("expected listen error on a busy port")
	}
}
