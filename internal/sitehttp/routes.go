// Package sitehttp mounts the content handler on a chi router.
package sitehttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Routes struct {
	Site http.Handler
}

func New(site http.Handler) *Routes {
	return &Routes{Site: site}
}

// RegisterRoutes installs the site handler as the router's fallback, so any
// path without an explicit route is looked up in the object store. It uses
// NotFound rather than a "/*" route so explicit routes registered before or
// after still win, and MethodNotAllowed so the site handler answers 405 with
// its own Allow header.
func (rt *Routes) RegisterRoutes(r chi.Router) {
	r.NotFound(rt.Site.ServeHTTP)
	r.MethodNotAllowed(rt.Site.ServeHTTP)
}
