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

package feed

import (
	"bytes"
	"net/url"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"willnorris.com/go/microformats"

	"github.com/rssfunnel/funnel/pkg/htmlutil"
)

// parseHTMLPage turns an HTML page into a feed. Pages carrying microformats2
// h-entry markup become one post per entry; anything else becomes a
// single-post feed wrapping the page body.
func parseHTMLPage(data []byte, contentType, base string) (*Feed, error) {
	r, err := charset.NewReader(bytes.NewReader(data), contentType)
	if err != nil {
		r = bytes.NewReader(data)
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "parse html page")
	}

	baseURL, _ := url.Parse(base)
	pageTitle := htmlutil.DocumentTitle(doc)

	f, _ := NewScratch(FormatRSS, pageTitle, base, "")
	mf := microformats.ParseNode(doc, baseURL)
	addEntries(f, hEntries(mf.Items))
	if f.PostCount() > 0 {
		return f, nil
	}

	// No microformats: the page itself is the single post.
	p := f.NewPost()
	p.SetTitle(pageTitle)
	p.SetLink(base)
	if base != "" {
		p.SetGUID(base)
	}
	p.SetBody(htmlutil.BodyInnerHTML(doc))
	f.SetPosts([]Post{p})
	return f, nil
}

// hEntries collects h-entry microformats, descending into h-feed containers.
func hEntries(items []*microformats.Microformat) []*microformats.Microformat {
	var out []*microformats.Microformat
	for _, item := range items {
		if hasType(item, "h-feed") {
			out = append(out, hEntries(item.Children)...)
			continue
		}
		if hasType(item, "h-entry") {
			out = append(out, item)
		}
	}
	return out
}

func addEntries(f *Feed, entries []*microformats.Microformat) {
	var posts []Post
	for _, e := range entries {
		link := mfString(e, "url")
		guid := mfString(e, "uid")
		if guid == "" {
			guid = link
		}
		if guid == "" {
			continue
		}

		p := f.NewPost()
		p.SetGUID(guid)
		p.SetTitle(mfString(e, "name"))
		if link != "" {
			p.SetLink(link)
		}
		if body := mfHTML(e, "content"); body != "" {
			p.SetBody(body)
		} else if summary := mfString(e, "summary"); summary != "" {
			p.SetBody(summary)
		}
		if t, ok := parseDate(mfString(e, "published")); ok {
			p.SetDate(t)
		}
		if author := mfAuthor(e); author != "" {
			p.SetAuthor(author)
		}
		posts = append(posts, p)
	}
	f.SetPosts(posts)
}

func hasType(m *microformats.Microformat, t string) bool {
	for _, v := range m.Type {
		if v == t {
			return true
		}
	}
	return false
}

func mfString(m *microformats.Microformat, key string) string {
	for _, v := range m.Properties[key] {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func mfHTML(m *microformats.Microformat, key string) string {
	for _, v := range m.Properties[key] {
		if mm, ok := v.(map[string]string); ok {
			if h := mm["html"]; h != "" {
				return h
			}
			return mm["value"]
		}
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func mfAuthor(m *microformats.Microformat) string {
	for _, v := range m.Properties["author"] {
		switch a := v.(type) {
		case string:
			return a
		case *microformats.Microformat:
			if name := mfString(a, "name"); name != "" {
				return name
			}
			return a.Value
		}
	}
	return ""
}
