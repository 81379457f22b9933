package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/sitecontent-web/internal/health"
	"github.com/keithlinneman/sitecontent-web/internal/httpmw"
	"github.com/keithlinneman/sitecontent-web/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	Health       health.Probe
	Readiness    health.Probe
	MappingInfo  httpmw.MappingInfo // X-Mapping-Version header

	// APIRoutes registers JSON endpoints before the site fallback.
	APIRoutes func(chi.Router)
	// SiteHandler answers every path no other route claims.
	SiteHandler http.Handler
}
