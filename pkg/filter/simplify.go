package filter

import (
	"context"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/rssfunnel/funnel/pkg/feed"
	"github.com/rssfunnel/funnel/pkg/htmlutil"
)

// SimplifyHTMLConfig has no options.
type SimplifyHTMLConfig struct{}

// simplifyHTML runs readability extraction over each post body, keeping
// the body as-is when extraction fails.
type simplifyHTML struct{}

func newSimplifyHTML(SimplifyHTMLConfig, BuildOptions) (Filter, error) {
	return simplifyHTML{}, nil
}

func (simplifyHTML) Run(ctx context.Context, f *feed.Feed) error {
	return MapPosts(ctx, f, 0, func(_ context.Context, p feed.Post) (bool, error) {
		for _, body := range p.Bodies() {
			if *body == "" {
				continue
			}
			simplified, err := simplifyText(*body, p.Link())
			if err != nil {
				return true, err
			}
			if simplified != "" {
				*body = simplified
			}
		}
		return true, nil
	})
}

// simplifyText extracts the readable core of an HTML document.
func simplifyText(text, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u == nil {
		u = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(text), u)
	if err != nil {
		return "", err
	}
	return unwrapReadability(article.Content), nil
}

// unwrapReadability strips the container divs readability wraps extracted
// content in, so simplification of an already-clean fragment stays a no-op.
func unwrapReadability(content string) string {
	roots, err := htmlutil.ParseFragment(content)
	if err != nil {
		return content
	}
	roots = dropBlankText(roots)
	for len(roots) == 1 && isReadabilityWrapper(roots[0]) {
		roots = dropBlankText(htmlutil.Children(roots[0]))
	}
	return strings.TrimSpace(htmlutil.RenderNodes(roots))
}

func isReadabilityWrapper(n *html.Node) bool {
	if n.Type != html.ElementNode || n.Data != "div" {
		return false
	}
	id, _ := htmlutil.Attr(n, "id")
	class, _ := htmlutil.Attr(n, "class")
	return strings.HasPrefix(id, "readability") || class == "page"
}

func dropBlankText(nodes []*html.Node) []*html.Node {
	out := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Type == html.TextNode && strings.TrimSpace(n.Data) == "" {
			continue
		}
		out = append(out, n)
	}
	return out
}
