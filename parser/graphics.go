package parser

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/alanbriolat/media-resolver"
)

// A Node is one piece of an article: either a run of text or an image.
type Node struct {
	Text     string
	ImageURL string
	Alt      string
}

func (n Node) IsImage() bool {
	return n.ImageURL != ""
}

// BuildGraphics turns article nodes into graphics contents. Text accumulates until the next image, becoming that
// image's caption; text after the last image is returned separately.
func (b *Base) BuildGraphics(nodes []Node) ([]media_resolver.MediaContent, string) {
	var contents []media_resolver.MediaContent
	var pending []string
	for _, n := range nodes {
		if !n.IsImage() {
			if t := strings.TrimSpace(n.Text); t != "" {
				pending = append(pending, t)
			}
			continue
		}
		if g := b.Graphics(n.ImageURL, strings.Join(pending, "\n"), n.Alt); g != nil {
			contents = append(contents, g)
		}
		pending = pending[:0]
	}
	return contents, strings.Join(pending, "\n")
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Blockquote: true, atom.Figcaption: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true, atom.Pre: true,
}

// ArticleNodes flattens an HTML article into text and image nodes in document order. Text is split at block
// elements; scripts and styles are skipped. Images use data-src when present, as lazy-loading pages do.
func ArticleNodes(root *html.Node) []Node {
	var nodes []Node
	var text strings.Builder
	flush := func() {
		if t := strings.TrimSpace(text.String()); t != "" {
			nodes = append(nodes, Node{Text: t})
		}
		text.Reset()
	}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			text.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			case atom.Img:
				src := attr(n, "data-src")
				if src == "" {
					src = attr(n, "src")
				}
				if src != "" {
					flush()
					if strings.HasPrefix(src, "//") {
						src = "https:" + src
					}
					nodes = append(nodes, Node{ImageURL: src, Alt: attr(n, "alt")})
				}
				return
			}
		}
		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}
	walk(root)
	flush()
	return nodes
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
