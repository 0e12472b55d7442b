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
	"log"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/pkg/errors"

	"github.com/rssfunnel/funnel/pkg/feed"
	"github.com/rssfunnel/funnel/pkg/fetch"
	"github.com/rssfunnel/funnel/pkg/htmlutil"
)

// FullTextConfig tunes the full text expansion.
type FullTextConfig struct {
	Timeout       fetch.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Parallelism   int            `yaml:"parallelism,omitempty" json:"parallelism,omitempty"`
	Simplify      bool           `yaml:"simplify,omitempty" json:"simplify,omitempty"`
	AppendMode    bool           `yaml:"append_mode,omitempty" json:"append_mode,omitempty"`
	KeepGUID      bool           `yaml:"keep_guid,omitempty" json:"keep_guid,omitempty"`
	KeepElement   string         `yaml:"keep_element,omitempty" json:"keep_element,omitempty"`
	RemoveElement OneOrMany      `yaml:"remove_element,omitempty" json:"remove_element,omitempty"`
	Client        fetch.Options  `yaml:"client,omitempty" json:"client,omitempty"`
}

const fullTextSeparator = "\n<br><hr><br>\n"
const keepElementFailed = "<p>Failed to filter description with keep_element</p>"

// fullText fetches each post's link and replaces, or appends to, the post
// body with the page content. Failures leave the post as it was.
type fullText struct {
	conf   FullTextConfig
	client *fetch.Client
	keep   cascadia.Selector
	remove []cascadia.Selector
}

func newFullText(conf FullTextConfig, opts BuildOptions) (Filter, error) {
	over := conf.Client
	if conf.Timeout != 0 {
		over.Timeout = conf.Timeout
	}
	client, err := opts.NewClient(over)
	if err != nil {
		return nil, err
	}
	ft := &fullText{conf: conf, client: client}
	if conf.KeepElement != "" {
		if ft.keep, err = htmlutil.Compile(conf.KeepElement); err != nil {
			return nil, err
		}
	}
	for _, raw := range conf.RemoveElement {
		sel, err := htmlutil.Compile(raw)
		if err != nil {
			return nil, err
		}
		ft.remove = append(ft.remove, sel)
	}
	return ft, nil
}

func (ft *fullText) Run(ctx context.Context, f *feed.Feed) error {
	return MapPosts(ctx, f, ft.conf.Parallelism, ft.expandPost)
}

func (ft *fullText) expandPost(ctx context.Context, p feed.Post) (bool, error) {
	link := p.Link()
	if link == "" {
		return true, errors.New("post has no link")
	}
	resp, err := ft.client.Get(ctx, link)
	if err != nil {
		return true, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return true, errors.Errorf("%s returned status %d", link, resp.Status)
	}
	if mt := resp.MediaType(); mt != "text/html" && mt != "application/xhtml+xml" {
		return true, errors.Errorf("%s is %q, not an HTML page", link, mt)
	}

	text, err := ft.extract(link, resp.Text())
	if err != nil {
		return true, err
	}
	if ft.conf.AppendMode && p.Body() != "" {
		p.SetBody(p.Body() + fullTextSeparator + text)
	} else {
		p.SetBody(text)
	}
	if !ft.conf.KeepGUID {
		// A new guid makes readers treat the expanded post as fresh.
		p.SetGUID(p.EnsureGUID() + "-full")
	}
	return true, nil
}

// extract turns a fetched page into the body text: optional readability
// pass, relative URL resolution, then the keep/remove selectors.
func (ft *fullText) extract(pageURL, text string) (string, error) {
	if ft.conf.Simplify {
		if simplified, err := simplifyText(text, pageURL); err == nil && simplified != "" {
			text = simplified
		} else if err != nil {
			log.Printf("WARN full_text: simplify %s: %v", pageURL, err)
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return "", errors.Wrapf(err, "parse %s", pageURL)
	}
	if base, err := url.Parse(pageURL); err == nil && len(doc.Nodes) > 0 {
		htmlutil.ResolveRelativeURLs(doc.Nodes[0], base)
	}
	for _, sel := range ft.remove {
		doc.FindMatcher(sel).Remove()
	}

	body, err := doc.Find("body").Html()
	if err != nil {
		return "", errors.Wrapf(err, "render %s", pageURL)
	}
	if ft.keep != nil {
		if matches := doc.FindMatcher(ft.keep); matches.Length() > 0 {
			body = htmlutil.RenderNodes(matches.Nodes)
		} else {
			body = keepElementFailed + "\n" + body
		}
	}
	return body, nil
}
