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

// Package htmlutil bundles the HTML tree plumbing shared by the filters,
// the JS DOM facade and the page importer: fragment parsing that survives
// round-trips without growing <html> wrappers, CSS selector matching, and
// relative URL fixup.
package htmlutil

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseFragment parses an HTML fragment in body context. The returned nodes
// are detached siblings; rendering them back yields the fragment without
// any <html> or <body> wrapping.
func ParseFragment(fragment string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return nil, errors.Wrap(err, "parse html fragment")
	}
	return nodes, nil
}

// WrapFragment hangs detached fragment roots off a synthetic body element,
// giving them a parent so that detach and replace edits work on the
// top-level nodes too. Serialize the result with InnerHTML to get the
// fragment back without wrapping.
func WrapFragment(roots []*html.Node) *html.Node {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	for _, n := range roots {
		body.AppendChild(n)
	}
	return body
}

// Children returns the direct children of n.
func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// Render serializes a node to HTML.
func Render(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

// RenderNodes serializes detached sibling nodes in order.
func RenderNodes(nodes []*html.Node) string {
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return buf.String()
		}
	}
	return buf.String()
}

// InnerHTML serializes the children of n.
func InnerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			break
		}
	}
	return buf.String()
}

// SetInnerHTML replaces the children of n with the parsed fragment.
func SetInnerHTML(n *html.Node, fragment string) error {
	nodes, err := ParseFragment(fragment)
	if err != nil {
		return err
	}
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
	for _, c := range nodes {
		n.AppendChild(c)
	}
	return nil
}

// Text returns the concatenated text content of n.
func Text(n *html.Node) string {
	var buf bytes.Buffer
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return buf.String()
}

// Compile turns a CSS selector into a matcher.
func Compile(selector string) (cascadia.Selector, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid css selector %q", selector)
	}
	return sel, nil
}

// SelectAll returns every node under the given roots matching sel, in
// document order.
func SelectAll(roots []*html.Node, sel cascadia.Selector) []*html.Node {
	var out []*html.Node
	for _, r := range roots {
		if r.Type == html.ElementNode && sel.Match(r) {
			out = append(out, r)
		}
		out = append(out, sel.MatchAll(r)...)
	}
	return out
}

// Detach removes n from its parent, keeping the node itself usable.
func Detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Attr returns the value of the named attribute and whether it is present.
func Attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces the named attribute.
func SetAttr(n *html.Node, name, value string) {
	for i := range n.Attr {
		if n.Attr[i].Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr deletes the named attribute if present.
func RemoveAttr(n *html.Node, name string) {
	for i := range n.Attr {
		if n.Attr[i].Key == name {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// FindElement returns the first element with the given tag in a depth-first
// walk of doc, or nil.
func FindElement(doc *html.Node, tag atom.Atom) *html.Node {
	if doc.Type == html.ElementNode && doc.DataAtom == tag {
		return doc
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if found := FindElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// DocumentTitle returns the text of the document's <title>, trimmed.
func DocumentTitle(doc *html.Node) string {
	t := FindElement(doc, atom.Title)
	if t == nil {
		return ""
	}
	return strings.TrimSpace(Text(t))
}

// BodyInnerHTML returns the serialized contents of the document's <body>,
// trimmed. When the document has no body the whole document is rendered.
func BodyInnerHTML(doc *html.Node) string {
	body := FindElement(doc, atom.Body)
	if body == nil {
		return strings.TrimSpace(Render(doc))
	}
	return strings.TrimSpace(InnerHTML(body))
}

// urlAttrs are the attributes rewritten by ResolveRelativeURLs.
var urlAttrs = []string{"href", "src", "srcset"}

// ResolveRelativeURLs rewrites relative href/src/srcset attributes under
// root into absolute URLs against base.
func ResolveRelativeURLs(root *html.Node, base *url.URL) {
	if base == nil {
		return
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, name := range urlAttrs {
				if val, ok := Attr(n, name); ok && val != "" {
					if name == "srcset" {
						SetAttr(n, name, resolveSrcset(val, base))
					} else if abs := resolveURL(val, base); abs != "" {
						SetAttr(n, name, abs)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}

func resolveURL(val string, base *url.URL) string {
	u, err := url.Parse(val)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		return ""
	}
	return base.ResolveReference(u).String()
}

// resolveSrcset rewrites each candidate URL of a srcset value.
func resolveSrcset(val string, base *url.URL) string {
	parts := strings.Split(val, ",")
	for i, part := range parts {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		if abs := resolveURL(fields[0], base); abs != "" {
			fields[0] = abs
		}
		parts[i] = strings.Join(fields, " ")
	}
	return strings.Join(parts, ", ")
}
