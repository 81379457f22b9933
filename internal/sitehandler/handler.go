// Package sitehandler serves site content from the object store.
//
// Each request path is validated, fetched through the mapping-aware
// fetcher, and written with http.ServeContent so conditional and range
// requests work. Markdown objects are rendered into the HTML layout when a
// renderer is configured.
package sitehandler

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/keithlinneman/sitecontent-web/internal/cryptoutil"
	"github.com/keithlinneman/sitecontent-web/internal/fetch"
	"github.com/keithlinneman/sitecontent-web/internal/log"
	"github.com/keithlinneman/sitecontent-web/internal/pathutil"
)

const htmlContentType = "text/html; charset=utf-8"

type Handler struct {
	opts Options
}

func New(opts *Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: *opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	L := log.FromContextOr(ctx, h.opts.Logger)

	p, ok := pathutil.Clean(r.URL.Path)
	if !ok {
		h.serveNotFound(w, r)
		return
	}

	res, found, err := h.opts.Fetcher.Fetch(ctx, p)
	if err != nil {
		h.serveFetchError(w, r, L, err)
		return
	}
	if !found && wantsDirectoryRedirect(p) {
		// /docs -> /docs/ when the directory has an index
		if _, dirFound, derr := h.opts.Fetcher.Fetch(ctx, p+"/"); derr == nil && dirFound {
			target := p + "/"
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusPermanentRedirect)
			return
		}
	}
	if !found {
		h.serveNotFound(w, r)
		return
	}

	body, ctype, etag := res.Body, res.ContentType, res.ETag
	if h.opts.Renderer != nil && isMarkdown(res.Key, ctype) {
		page, err := h.renderPage(res)
		if err != nil {
			L.Error(ctx, err, "markdown render failed", "key", res.Key)
			h.writeStatus(w, r, http.StatusInternalServerError)
			return
		}
		body, ctype, etag = page, htmlContentType, cryptoutil.QuotedETag(page)
	}

	hdr := w.Header()
	hdr.Set("Content-Type", ctype)
	if etag != "" {
		hdr.Set("ETag", etag)
	}
	if cc := cacheControlFor(res.Key, &h.opts); cc != "" {
		hdr.Set("Cache-Control", cc)
	}
	http.ServeContent(w, r, res.Key, res.LastModified, bytes.NewReader(body))
}

func (h *Handler) serveFetchError(w http.ResponseWriter, r *http.Request, L log.Logger, err error) {
	ctx := r.Context()
	if errors.Is(err, fetch.ErrMappings) {
		L.Error(ctx, err, "mapping table unavailable")
		h.serveMaintenance(w, r)
		return
	}
	if errors.Is(err, context.Canceled) {
		// client went away
		return
	}
	L.Error(ctx, err, "object fetch failed")
	h.writeStatus(w, r, http.StatusBadGateway)
}

func (h *Handler) renderPage(res *fetch.Result) ([]byte, error) {
	start := time.Now()
	frag, err := h.opts.Renderer.Render(res.Body)
	if h.opts.RenderMetrics != nil {
		h.opts.RenderMetrics.ObserveMarkdownRender(err, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = h.opts.Layout.Execute(&buf, struct {
		Title string
		Body  template.HTML
	}{
		Title: pageTitle(res.Key, res.Body),
		Body:  template.HTML(frag), // store content is trusted
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *Handler) serveMaintenance(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", "60")
	h.serveFallback(w, r, http.StatusServiceUnavailable, h.opts.MaintenanceFile)
}

func (h *Handler) serveNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	// a themed 404 from the bucket wins over the embedded page
	if h.opts.NotFoundKey != "" {
		if res, ok, err := h.opts.Fetcher.Fetch(r.Context(), h.opts.NotFoundKey); err == nil && ok {
			w.Header().Set("Content-Type", res.ContentType)
			writeBody(w, r, http.StatusNotFound, res.Body)
			return
		}
	}
	h.serveFallback(w, r, http.StatusNotFound, h.opts.Fallback404File)
}

// serveFallback writes an embedded page with a forced status, degrading to
// plain text when the page is missing.
func (h *Handler) serveFallback(w http.ResponseWriter, r *http.Request, status int, name string) {
	page, err := fs.ReadFile(h.opts.FallbackFS, name)
	if err != nil {
		h.writeStatus(w, r, status)
		return
	}
	w.Header().Set("Content-Type", htmlContentType)
	writeBody(w, r, status, page)
}

func (h *Handler) writeStatus(w http.ResponseWriter, r *http.Request, status int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	writeBody(w, r, status, []byte(http.StatusText(status)+"\n"))
}

func writeBody(w http.ResponseWriter, r *http.Request, status int, body []byte) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}
