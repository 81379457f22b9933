package opshttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/sitecontent-web/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe

	// AdminRoutes mounts operator endpoints such as the preferences form.
	AdminRoutes func(chi.Router)

	UseRecoverMW bool
	OnPanic      func() // runs after a recovered panic is logged, e.g. to bump a counter
}
