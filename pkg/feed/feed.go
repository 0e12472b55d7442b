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

// Package feed holds the normalized in-memory representation of a feed: an
// RSS 2.0 or Atom document plus an output format, with format-agnostic
// accessors over posts. Feeds are parsed from bytes, mutated in place by
// filters and serialized back without losing unknown extension elements.
package feed

import (
	"bytes"
	"encoding/xml"
	"sort"

	"github.com/pkg/errors"

	"github.com/rssfunnel/funnel/pkg/util"
)

// Format names a feed serialization.
type Format string

const (
	FormatRSS  Format = "rss"
	FormatAtom Format = "atom"
	FormatJSON Format = "json"
)

// ParseFormat converts a config/query string into a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatRSS, FormatAtom, FormatJSON:
		return Format(s), nil
	}
	return "", errors.Errorf("unknown feed format %q", s)
}

// Feed is the normalized feed representation. Exactly one of the two shape
// pointers is set; JSON feeds are carried in the RSS shape and remember
// FormatJSON as their output format.
type Feed struct {
	rss    *RSS
	atom   *AtomFeed
	format Format
}

// NewScratch creates an empty feed with the given metadata, used by scratch
// sources.
func NewScratch(format Format, title, link, description string) (*Feed, error) {
	switch format {
	case FormatRSS, FormatJSON, "":
		if format == "" {
			format = FormatRSS
		}
		return &Feed{rss: newRSS(title, link, description), format: format}, nil
	case FormatAtom:
		return &Feed{atom: newAtom(title, link, description), format: FormatAtom}, nil
	}
	return nil, errors.Errorf("unknown feed format %q", format)
}

// Variant reports the shape of the feed: FormatRSS or FormatAtom.
func (f *Feed) Variant() Format {
	if f.atom != nil {
		return FormatAtom
	}
	return FormatRSS
}

// Format reports the output serialization.
func (f *Feed) Format() Format { return f.format }

// Title returns the feed title.
func (f *Feed) Title() string {
	if f.rss != nil && f.rss.Channel != nil {
		return f.rss.Channel.Title
	}
	if f.atom != nil {
		return f.atom.Title.Value
	}
	return ""
}

// SetTitle replaces the feed title.
func (f *Feed) SetTitle(s string) {
	if f.rss != nil && f.rss.Channel != nil {
		f.rss.Channel.Title = s
	}
	if f.atom != nil {
		f.atom.Title.Value = s
	}
}

// Link returns the feed's alternate link.
func (f *Feed) Link() string {
	if f.rss != nil && f.rss.Channel != nil {
		return f.rss.Channel.Link
	}
	if f.atom != nil {
		return alternateLink(f.atom.Links)
	}
	return ""
}

// SetLink replaces the feed's alternate link.
func (f *Feed) SetLink(s string) {
	if f.rss != nil && f.rss.Channel != nil {
		f.rss.Channel.Link = s
	}
	if f.atom != nil {
		f.atom.Links = setAlternateLink(f.atom.Links, s)
	}
}

// Description returns the channel description or Atom subtitle.
func (f *Feed) Description() string {
	if f.rss != nil && f.rss.Channel != nil {
		return f.rss.Channel.Description
	}
	if f.atom != nil && f.atom.Subtitle != nil {
		return f.atom.Subtitle.Value
	}
	return ""
}

// SetDescription replaces the channel description or Atom subtitle.
func (f *Feed) SetDescription(s string) {
	if f.rss != nil && f.rss.Channel != nil {
		f.rss.Channel.Description = s
	}
	if f.atom != nil {
		if f.atom.Subtitle == nil {
			f.atom.Subtitle = &AtomText{}
		}
		f.atom.Subtitle.Value = s
	}
}

// Posts returns the posts in feed order. The returned posts share storage
// with the feed: mutating a post mutates the feed.
func (f *Feed) Posts() []Post {
	if f.rss != nil && f.rss.Channel != nil {
		out := make([]Post, 0, len(f.rss.Channel.Items))
		for _, it := range f.rss.Channel.Items {
			out = append(out, Post{Item: it})
		}
		return out
	}
	if f.atom != nil {
		out := make([]Post, 0, len(f.atom.Entries))
		for _, e := range f.atom.Entries {
			out = append(out, Post{Entry: e})
		}
		return out
	}
	return nil
}

// PostCount returns the number of posts without materializing them.
func (f *Feed) PostCount() int {
	if f.rss != nil && f.rss.Channel != nil {
		return len(f.rss.Channel.Items)
	}
	if f.atom != nil {
		return len(f.atom.Entries)
	}
	return 0
}

// SetPosts replaces the feed's posts. Posts of the wrong variant are
// silently dropped; filters create posts through NewPost so this does not
// happen in practice.
func (f *Feed) SetPosts(posts []Post) {
	if f.rss != nil && f.rss.Channel != nil {
		items := make([]*Item, 0, len(posts))
		for _, p := range posts {
			if p.Item != nil {
				items = append(items, p.Item)
			}
		}
		f.rss.Channel.Items = items
	}
	if f.atom != nil {
		entries := make([]*Entry, 0, len(posts))
		for _, p := range posts {
			if p.Entry != nil {
				entries = append(entries, p.Entry)
			}
		}
		f.atom.Entries = entries
	}
}

// TakePosts removes and returns all posts, leaving the feed empty.
func (f *Feed) TakePosts() []Post {
	posts := f.Posts()
	f.SetPosts(nil)
	return posts
}

// NewPost returns a fresh, unattached post matching the feed's variant.
func (f *Feed) NewPost() Post {
	if f.atom != nil {
		return Post{Entry: &Entry{}}
	}
	return Post{Item: &Item{}}
}

// Truncate keeps only the first n posts.
func (f *Feed) Truncate(n int) {
	if n < 0 || n >= f.PostCount() {
		return
	}
	if f.rss != nil && f.rss.Channel != nil {
		f.rss.Channel.Items = f.rss.Channel.Items[:n]
	}
	if f.atom != nil {
		f.atom.Entries = f.atom.Entries[:n]
	}
}

// Merge appends the posts of other. Both feeds must have the same variant.
func (f *Feed) Merge(other *Feed) error {
	if f.Variant() != other.Variant() {
		return errors.Errorf("cannot merge %s feed into %s feed", other.Variant(), f.Variant())
	}
	f.SetPosts(append(f.Posts(), other.Posts()...))
	return nil
}

// Reorder sorts posts by publication date, newest first. The sort is stable
// and undated posts sink to the end.
func (f *Feed) Reorder() {
	posts := f.Posts()
	dated := util.StablePartition(posts, 0, len(posts), func(p Post) bool {
		_, ok := p.Date()
		return ok
	})
	sort.SliceStable(posts[:dated], func(i, j int) bool {
		ti, _ := posts[i].Date()
		tj, _ := posts[j].Date()
		return ti.After(tj)
	})
	f.SetPosts(posts)
}

// DedupeByGUID removes posts whose identifier was already seen, keeping the
// first occurrence. Posts without an identifier get one derived first.
func (f *Feed) DedupeByGUID() {
	seen := make(map[string]bool)
	posts := f.Posts()
	kept := posts[:0]
	for _, p := range posts {
		g := p.EnsureGUID()
		if seen[g] {
			continue
		}
		seen[g] = true
		kept = append(kept, p)
	}
	f.SetPosts(kept)
}

// ContentType returns the Content-Type the feed serializes as.
func (f *Feed) ContentType() string {
	switch f.format {
	case FormatAtom:
		return "application/atom+xml; charset=utf-8"
	case FormatJSON:
		return "application/feed+json; charset=utf-8"
	default:
		return "application/rss+xml; charset=utf-8"
	}
}

// Marshal serializes the feed in its output format.
func (f *Feed) Marshal(pretty bool) ([]byte, error) {
	if f.format == FormatJSON {
		return f.marshalJSONFeed(pretty)
	}

	var doc interface{}
	switch {
	case f.rss != nil:
		doc = f.rss
	case f.atom != nil:
		doc = f.atom
	default:
		return nil, errors.New("empty feed")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if pretty {
		enc.Indent("", "  ")
	}
	if err := enc.Encode(doc); err != nil {
		return nil, errors.Wrap(err, "serialize feed")
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
