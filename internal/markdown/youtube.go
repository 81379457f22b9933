package markdown

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// The first field is a label for readers of the source and is ignored.
var shortcodeRe = regexp.MustCompile(`^\[\[ *(.+?) *\| *(.+?) *\]\]`)

const embedTemplate = `<iframe width="560" height="315" src="https://www.youtube.com/embed/%s" ` +
	`title="YouTube video player" frameborder="0" allow="accelerometer; autoplay; clipboard-write; ` +
	`encrypted-media; gyroscope; picture-in-picture" allowfullscreen></iframe>`

var KindYouTube = ast.NewNodeKind("YouTube")

// YouTubeNode is an inline embed for one video.
type YouTubeNode struct {
	ast.BaseInline
	VideoID string
}

func (n *YouTubeNode) Kind() ast.NodeKind { return KindYouTube }

func (n *YouTubeNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"VideoID": n.VideoID}, nil)
}

type youtubeParser struct{}

func (youtubeParser) Trigger() []byte { return []byte{'['} }

func (youtubeParser) Parse(_ ast.Node, block text.Reader, _ parser.Context) ast.Node {
	line, _ := block.PeekLine()
	m := shortcodeRe.FindSubmatch(line)
	if m == nil {
		return nil
	}
	block.Advance(len(m[0]))
	return &YouTubeNode{VideoID: string(m[2])}
}

type youtubeRenderer struct{}

func (youtubeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindYouTube, renderYouTube)
}

func renderYouTube(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*YouTubeNode)
	_, _ = fmt.Fprintf(w, embedTemplate, url.PathEscape(n.VideoID))
	return ast.WalkSkipChildren, nil
}

type youtube struct{}

// YouTube enables the [[ youtube | VIDEO_ID ]] shortcode.
var YouTube goldmark.Extender = youtube{}

func (youtube) Extend(m goldmark.Markdown) {
	// ahead of the link parser (200), which would otherwise claim the "["
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(youtubeParser{}, 199),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(youtubeRenderer{}, 500),
	))
}
