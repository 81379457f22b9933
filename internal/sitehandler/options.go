package sitehandler

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"time"

	"github.com/keithlinneman/sitecontent-web/internal/fetch"
	"github.com/keithlinneman/sitecontent-web/internal/log"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

type Fetcher interface {
	Fetch(ctx context.Context, key string) (*fetch.Result, bool, error)
}

type Renderer interface {
	Render(src []byte) ([]byte, error)
}

type RenderMetrics interface {
	ObserveMarkdownRender(err error, d time.Duration)
}

type Options struct {
	Logger  log.Logger
	Fetcher Fetcher

	// Renderer turns markdown objects into HTML. nil serves them raw.
	Renderer Renderer
	// Layout wraps rendered markdown; required with Renderer.
	Layout        *template.Template
	RenderMetrics RenderMetrics

	// FallbackFS holds pages served when the store cannot answer.
	FallbackFS      fs.FS
	MaintenanceFile string // default "maintenance.html"
	Fallback404File string // default "404.html"

	// NotFoundKey is fetched from the store for a themed 404 before the
	// embedded one is used. Empty disables the lookup.
	NotFoundKey string

	HTMLCacheControl  string // default "no-cache"
	AssetCacheControl string // default "public, max-age=31536000, immutable"
	OtherCacheControl string // default "public, max-age=3600"
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.MaintenanceFile == "" {
		o.MaintenanceFile = "maintenance.html"
	}
	if o.Fallback404File == "" {
		o.Fallback404File = "404.html"
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=31536000, immutable"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.Fetcher == nil {
		return fmt.Errorf("%w: Fetcher is nil", ErrInvalidOptions)
	}
	if o.FallbackFS == nil {
		return fmt.Errorf("%w: FallbackFS is nil", ErrInvalidOptions)
	}
	if o.Renderer != nil && o.Layout == nil {
		return fmt.Errorf("%w: Renderer set without Layout", ErrInvalidOptions)
	}
	// fail at boot if the binary was built without its fallback pages
	if _, err := fs.Stat(o.FallbackFS, o.MaintenanceFile); err != nil {
		return fmt.Errorf("%w: missing %q in fallback FS: %v", ErrInvalidOptions, o.MaintenanceFile, err)
	}
	return nil
}
