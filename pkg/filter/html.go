/*
   rss-funnel - a filtering proxy for RSS, Atom and JSON feeds
   Copyright (C) 2025  rss-funnel contributors

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU General Public License as published by
   the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU General Public License for more details.

   You should have received a copy of the GNU General Public License
   along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

package filter

import (
	"context"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/rssfunnel/funnel/pkg/feed"
	"github.com/rssfunnel/funnel/pkg/htmlutil"
)

// KeepElementConfig is a CSS selector.
type KeepElementConfig string

// keepElement trims every post body down to the elements matching a
// selector, concatenated in document order.
type keepElement struct {
	sel cascadia.Selector
}

func newKeepElement(conf KeepElementConfig, _ BuildOptions) (Filter, error) {
	if conf == "" {
		return nil, errors.New("keep_element needs a selector")
	}
	sel, err := htmlutil.Compile(string(conf))
	if err != nil {
		return nil, err
	}
	return &keepElement{sel: sel}, nil
}

func (k *keepElement) Run(ctx context.Context, f *feed.Feed) error {
	return MapPosts(ctx, f, 0, func(_ context.Context, p feed.Post) (bool, error) {
		for _, body := range p.Bodies() {
			roots, err := htmlutil.ParseFragment(*body)
			if err != nil {
				return true, err
			}
			matches := htmlutil.SelectAll(roots, k.sel)
			if len(matches) == 0 {
				*body = "<no element kept>"
				continue
			}
			*body = htmlutil.RenderNodes(matches)
		}
		return true, nil
	})
}

// RemoveElementConfig is a selector or list of selectors.
type RemoveElementConfig = OneOrMany

// removeElement deletes every match of its selectors from post bodies.
type removeElement struct {
	sels []cascadia.Selector
}

func newRemoveElement(conf RemoveElementConfig, _ BuildOptions) (Filter, error) {
	if len(conf) == 0 {
		return nil, errors.New("remove_element needs at least one selector")
	}
	sels := make([]cascadia.Selector, 0, len(conf))
	for _, raw := range conf {
		sel, err := htmlutil.Compile(raw)
		if err != nil {
			return nil, err
		}
		sels = append(sels, sel)
	}
	return &removeElement{sels: sels}, nil
}

func (r *removeElement) Run(ctx context.Context, f *feed.Feed) error {
	return MapPosts(ctx, f, 0, func(_ context.Context, p feed.Post) (bool, error) {
		for _, body := range p.Bodies() {
			roots, err := htmlutil.ParseFragment(*body)
			if err != nil {
				return true, err
			}
			container := htmlutil.WrapFragment(roots)
			for _, sel := range r.sels {
				for _, n := range htmlutil.SelectAll(htmlutil.Children(container), sel) {
					htmlutil.Detach(n)
				}
			}
			*body = htmlutil.InnerHTML(container)
		}
		return true, nil
	})
}

// SplitConfig selects the pieces each child post is assembled from. title
// is required; the other selectors must match the same number of elements
// when set.
type SplitConfig struct {
	Title   string `yaml:"title" json:"title"`
	Link    string `yaml:"link,omitempty" json:"link,omitempty"`
	Content string `yaml:"content,omitempty" json:"content,omitempty"`
	Author  string `yaml:"author,omitempty" json:"author,omitempty"`
}

// split replaces each post by one post per element its title selector
// matches in the body, zipping in links, bodies and authors from the other
// selectors. A count mismatch leaves the post unchanged.
type split struct {
	title   cascadia.Selector
	link    cascadia.Selector
	content cascadia.Selector
	author  cascadia.Selector
}

func newSplit(conf SplitConfig, _ BuildOptions) (Filter, error) {
	if conf.Title == "" {
		return nil, errors.New("split needs a title selector")
	}
	s := &split{}
	var err error
	if s.title, err = htmlutil.Compile(conf.Title); err != nil {
		return nil, err
	}
	compile := func(raw string) (cascadia.Selector, error) {
		if raw == "" {
			return nil, nil
		}
		return htmlutil.Compile(raw)
	}
	if s.link, err = compile(conf.Link); err != nil {
		return nil, err
	}
	if s.content, err = compile(conf.Content); err != nil {
		return nil, err
	}
	if s.author, err = compile(conf.Author); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *split) Run(ctx context.Context, f *feed.Feed) error {
	posts := f.TakePosts()
	out := make([]feed.Post, 0, len(posts))
	for _, p := range posts {
		out = append(out, s.splitPost(p)...)
	}
	f.SetPosts(out)
	return nil
}

// splitPost derives the child posts of p. On any trouble the original post
// is returned unchanged.
func (s *split) splitPost(p feed.Post) []feed.Post {
	body := p.Body()
	if body == "" {
		p.SetBody("split failed: no body")
		return []feed.Post{p}
	}
	roots, err := htmlutil.ParseFragment(body)
	if err != nil {
		return []feed.Post{p}
	}

	titles := texts(htmlutil.SelectAll(roots, s.title))
	n := len(titles)

	var links []string
	if s.link != nil {
		links = linkValues(htmlutil.SelectAll(roots, s.link), p.Link())
		if len(links) != n {
			return []feed.Post{p}
		}
	}
	var bodies []string
	if s.content != nil {
		bodies = inners(htmlutil.SelectAll(roots, s.content))
		if len(bodies) != n {
			return []feed.Post{p}
		}
	}
	var authors []string
	if s.author != nil {
		authors = texts(htmlutil.SelectAll(roots, s.author))
		if len(authors) != n {
			return []feed.Post{p}
		}
	}

	children := make([]feed.Post, 0, n)
	for i := 0; i < n; i++ {
		child := p.Clone()
		child.SetTitle(titles[i])
		if links != nil {
			child.SetLink(links[i])
			child.SetGUID(links[i])
		}
		if bodies != nil {
			child.SetBody(bodies[i])
		}
		if authors != nil {
			child.SetAuthor(authors[i])
		}
		children = append(children, child)
	}
	return children
}

// texts extracts the trimmed text content of each node.
func texts(nodes []*html.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, strings.TrimSpace(htmlutil.Text(n)))
	}
	return out
}

// inners extracts the inner HTML of each node.
func inners(nodes []*html.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, htmlutil.InnerHTML(n))
	}
	return out
}

// linkValues extracts a URL per node: its href, else the first descendant
// href, resolved against the post's own link. Elements carrying no href at
// all inherit the post link.
func linkValues(nodes []*html.Node, base string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		baseURL = nil
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		href := findHref(n)
		if baseURL != nil {
			if u, err := baseURL.Parse(href); err == nil {
				href = u.String()
			}
		}
		out = append(out, href)
	}
	return out
}

func findHref(n *html.Node) string {
	if v, ok := htmlutil.Attr(n, "href"); ok {
		return v
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if v := findHref(c); v != "" {
			return v
		}
	}
	return ""
}
