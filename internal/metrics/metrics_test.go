package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/keithlinneman/sitecontent-web/internal/version"
)

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Get("/api/content/resolve", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	h := m.Middleware(r)

	for range 3 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/content/resolve?path=/x", nil))
	}

	if got := testutil.ToFloat64(m.reqTotal.WithLabelValues("GET", "/api/content/resolve", "502")); got != 3 {
		t.Fatalf("requests = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.errorsTotal.WithLabelValues("GET", "/api/content/resolve")); got != 3 {
		t.Fatalf("errors = %v, want 3", got)
	}
}

func TestMiddleware_UnmatchedRouteLabel(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/some/random/path", nil))

	if got := testutil.ToFloat64(m.reqTotal.WithLabelValues("GET", "unmatched", "200")); got != 1 {
		t.Fatalf("requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.inflight); got != 0 {
		t.Fatalf("inflight = %v after request", got)
	}
}

func TestObjectFetchAndRender(t *testing.T) {
	m := New()
	m.ObserveObjectFetch("s3", "hit", 10*time.Millisecond)
	m.ObserveObjectFetch("s3", "not_found", time.Millisecond)
	m.ObserveObjectFetch("s3", "not_found", time.Millisecond)
	m.ObserveMarkdownRender(nil, time.Millisecond)
	m.ObserveMarkdownRender(errors.New("bad"), time.Millisecond)

	if got := testutil.ToFloat64(m.fetchTotal.WithLabelValues("s3", "not_found")); got != 2 {
		t.Fatalf("not_found = %v", got)
	}
	if got := testutil.ToFloat64(m.renderTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("render errors = %v", got)
	}
}

func TestSetMapping_ReplacesLabels(t *testing.T) {
	m := New()
	now := time.Unix(1700000000, 0)
	m.SetMapping("file", "aaa", 2, now)
	m.SetMapping("ssm", "bbb", 3, now)

	if n := testutil.CollectAndCount(m.mappingVersion); n != 1 {
		t.Fatalf("version series = %d, want 1", n)
	}
	if got := testutil.ToFloat64(m.mappingVersion.WithLabelValues("bbb")); got != 1 {
		t.Fatalf("version gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.mappingEntries); got != 3 {
		t.Fatalf("entries = %v", got)
	}
}

func TestHandler_ExposesBuildInfo(t *testing.T) {
	m := New()
	vi := version.Get()
	m.SetBuildInfoFromVersion("sitecontent-web", "server", &vi)
	m.SetWatcherStale(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"build_info{", `app="sitecontent-web"`, "mapping_watcher_stale 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
