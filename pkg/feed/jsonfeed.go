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
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
)

const jsonFeedVersion = "https://jsonfeed.org/version/1.1"

// JSONAttachment contains attachments for podcasts.
type JSONAttachment struct {
	URL               string `json:"url"`
	MimeType          string `json:"mime_type"`
	Title             string `json:"title,omitempty"`
	SizeInBytes       int64  `json:"size_in_bytes,omitempty"`
	DurationInSeconds int    `json:"duration_in_seconds,omitempty"`
}

// JSONItem is a single item of a JSON Feed.
type JSONItem struct {
	ID            string           `json:"id"`
	ContentText   string           `json:"content_text,omitempty"`
	ContentHTML   string           `json:"content_html,omitempty"`
	Summary       string           `json:"summary,omitempty"`
	Title         string           `json:"title,omitempty"`
	URL           string           `json:"url,omitempty"`
	Image         string           `json:"image,omitempty"`
	ExternalURL   string           `json:"external_url,omitempty"`
	DatePublished string           `json:"date_published,omitempty"`
	Author        *JSONAuthor      `json:"author,omitempty"`
	Tags          []string         `json:"tags,omitempty"`
	Attachments   []JSONAttachment `json:"attachments,omitempty"`
}

// JSONAuthor is the author of a feed or item.
type JSONAuthor struct {
	Name   string `json:"name,omitempty"`
	URL    string `json:"url,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// JSONHub contains a reference to a feed hub.
type JSONHub struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// JSONFeed is the top-level JSON Feed object.
type JSONFeed struct {
	Version     string      `json:"version"`
	Title       string      `json:"title"`
	HomePageURL string      `json:"home_page_url,omitempty"`
	FeedURL     string      `json:"feed_url,omitempty"`
	Description string      `json:"description,omitempty"`
	NextURL     string      `json:"next_url,omitempty"`
	Icon        string      `json:"icon,omitempty"`
	Favicon     string      `json:"favicon,omitempty"`
	Author      *JSONAuthor `json:"author,omitempty"`
	Items       []JSONItem  `json:"items"`
	Hubs        []JSONHub   `json:"hubs,omitempty"`
}

// parseJSONFeed reads a JSON Feed document and converts it to the internal
// RSS shape with FormatJSON as its output format.
func parseJSONFeed(body io.Reader) (*Feed, error) {
	var jf JSONFeed
	if err := json.NewDecoder(body).Decode(&jf); err != nil {
		return nil, errors.Wrap(err, "parse json feed")
	}

	f := &Feed{rss: newRSS(jf.Title, jf.HomePageURL, jf.Description), format: FormatJSON}
	for i := range jf.Items {
		ji := &jf.Items[i]
		p := f.NewPost()
		p.SetTitle(ji.Title)
		if ji.URL != "" {
			p.SetLink(ji.URL)
		} else {
			p.SetLink(ji.ExternalURL)
		}
		if ji.ID != "" {
			p.SetGUID(ji.ID)
		}
		if ji.ContentHTML != "" {
			p.Item.Content = ji.ContentHTML
		} else if ji.ContentText != "" {
			p.Item.Description = ji.ContentText
		}
		if ji.Summary != "" && p.Item.Description == "" {
			p.Item.Description = ji.Summary
		}
		if ji.Author != nil {
			p.SetAuthor(ji.Author.Name)
		}
		if t, ok := parseDate(ji.DatePublished); ok {
			p.SetDate(t)
		}
		p.Item.Categories = append(p.Item.Categories, ji.Tags...)
		if len(ji.Attachments) > 0 {
			a := ji.Attachments[0]
			p.Item.Enclosure = &Enclosure{URL: a.URL, Type: a.MimeType, Length: a.SizeInBytes}
		}
		f.rss.Channel.Items = append(f.rss.Channel.Items, p.Item)
	}
	return f, nil
}

// marshalJSONFeed serializes the feed as JSON Feed 1.1 regardless of the
// internal shape.
func (f *Feed) marshalJSONFeed(pretty bool) ([]byte, error) {
	jf := JSONFeed{
		Version:     jsonFeedVersion,
		Title:       f.Title(),
		HomePageURL: f.Link(),
		Description: f.Description(),
		Items:       []JSONItem{},
	}
	for _, p := range f.Posts() {
		ji := JSONItem{
			ID:          p.EnsureGUID(),
			Title:       p.Title(),
			URL:         p.Link(),
			ContentHTML: p.Body(),
		}
		if a := p.Author(); a != "" {
			ji.Author = &JSONAuthor{Name: a}
		}
		if t, ok := p.Date(); ok {
			ji.DatePublished = t.Format(time.RFC3339)
		}
		jf.Items = append(jf.Items, ji)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(&jf); err != nil {
		return nil, errors.Wrap(err, "serialize json feed")
	}
	return buf.Bytes(), nil
}
