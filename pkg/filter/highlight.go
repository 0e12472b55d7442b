package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/rssfunnel/funnel/pkg/feed"
	"github.com/rssfunnel/funnel/pkg/htmlutil"
)

// HighlightConfig lists what to highlight: literal keywords, regex
// patterns, or both.
type HighlightConfig struct {
	Keywords OneOrMany `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Patterns OneOrMany `yaml:"patterns,omitempty" json:"patterns,omitempty"`
}

// highlight wraps matches in <mark> elements. Only text nodes are touched;
// script, style and already-marked content is skipped, so the filter is
// idempotent.
type highlight struct {
	re *regexp.Regexp
}

func newHighlight(conf HighlightConfig, _ BuildOptions) (Filter, error) {
	parts := make([]string, 0, len(conf.Keywords)+len(conf.Patterns))
	for _, kw := range conf.Keywords {
		if kw != "" {
			parts = append(parts, regexp.QuoteMeta(kw))
		}
	}
	for _, pat := range conf.Patterns {
		if pat != "" {
			parts = append(parts, pat)
		}
	}
	if len(parts) == 0 {
		return nil, errors.New("highlight needs keywords or patterns")
	}
	re, err := regexp.Compile(strings.Join(parts, "|"))
	if err != nil {
		return nil, err
	}
	return &highlight{re: re}, nil
}

func (h *highlight) Run(ctx context.Context, f *feed.Feed) error {
	return MapPosts(ctx, f, 0, func(_ context.Context, p feed.Post) (bool, error) {
		for _, body := range p.Bodies() {
			if *body == "" {
				continue
			}
			roots, err := htmlutil.ParseFragment(*body)
			if err != nil {
				return true, err
			}
			container := htmlutil.WrapFragment(roots)
			h.walk(container)
			*body = htmlutil.InnerHTML(container)
		}
		return true, nil
	})
}

func (h *highlight) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "mark":
			return
		}
	}
	c := n.FirstChild
	for c != nil {
		next := c.NextSibling
		if c.Type == html.TextNode {
			h.markText(c)
		} else {
			h.walk(c)
		}
		c = next
	}
}

// markText splits a text node around its matches and wraps each match in a
// <mark> element.
func (h *highlight) markText(t *html.Node) {
	text := t.Data
	locs := h.re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return
	}

	parent := t.Parent
	last := 0
	for _, loc := range locs {
		if loc[0] == loc[1] {
			continue
		}
		if loc[0] > last {
			parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text[last:loc[0]]}, t)
		}
		mark := &html.Node{Type: html.ElementNode, Data: "mark"}
		mark.AppendChild(&html.Node{Type: html.TextNode, Data: text[loc[0]:loc[1]]})
		parent.InsertBefore(mark, t)
		last = loc[1]
	}
	if last == 0 {
		return
	}
	if last < len(text) {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text[last:]}, t)
	}
	parent.RemoveChild(t)
}
