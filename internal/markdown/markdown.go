// Package markdown renders content pages written in Markdown.
//
// Output is GitHub-flavored Markdown with two additions: fenced code blocks
// are highlighted with inline chroma styles, and a [[ youtube | ID ]]
// shortcode expands to an embedded player. Raw HTML in the source is passed
// through unchanged.
package markdown

import (
	"bytes"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/keithlinneman/sitecontent-web/internal/xerrors"
)

const DefaultStyle = "solarized-dark"

type Options struct {
	// Style is a chroma style name. Empty means DefaultStyle.
	Style string
}

type Renderer struct {
	md goldmark.Markdown
}

func New(opts Options) (*Renderer, error) {
	style := opts.Style
	if style == "" {
		style = DefaultStyle
	}
	if _, ok := styles.Registry[style]; !ok {
		return nil, xerrors.Newf("unknown highlight style %q", style)
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			YouTube,
			highlighting.NewHighlighting(
				highlighting.WithStyle(style),
				highlighting.WithGuessLanguage(true),
				highlighting.WithFormatOptions(html.WithClasses(false)),
			),
		),
		// raw HTML blocks and inline tags are emitted as written
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
	return &Renderer{md: md}, nil
}

// Render converts src to an HTML fragment.
func (r *Renderer) Render(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf); err != nil {
		return nil, xerrors.Wrap(err, "render markdown")
	}
	return buf.Bytes(), nil
}
