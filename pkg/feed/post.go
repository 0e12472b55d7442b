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
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2s"
)

// Post is a single feed entry. Exactly one of Item and Entry is set,
// matching the variant of the owning Feed. Accessor methods hide the
// variant from filters; mutations go straight to the underlying element.
type Post struct {
	Item  *Item
	Entry *Entry
}

// Title returns the post title, or "".
func (p Post) Title() string {
	if p.Item != nil {
		return p.Item.Title
	}
	if p.Entry != nil {
		return p.Entry.Title.Value
	}
	return ""
}

// SetTitle replaces the post title.
func (p Post) SetTitle(s string) {
	if p.Item != nil {
		p.Item.Title = s
	}
	if p.Entry != nil {
		p.Entry.Title.Value = s
	}
}

// Link returns the post link, or "".
func (p Post) Link() string {
	if p.Item != nil {
		return p.Item.Link
	}
	if p.Entry != nil {
		return alternateLink(p.Entry.Links)
	}
	return ""
}

// SetLink replaces the post link.
func (p Post) SetLink(s string) {
	if p.Item != nil {
		p.Item.Link = s
	}
	if p.Entry != nil {
		p.Entry.Links = setAlternateLink(p.Entry.Links, s)
	}
}

// Author returns the post author name, or "".
func (p Post) Author() string {
	if p.Item != nil {
		return p.Item.Author
	}
	if p.Entry != nil && p.Entry.Author != nil {
		return p.Entry.Author.Name
	}
	return ""
}

// SetAuthor replaces the post author.
func (p Post) SetAuthor(s string) {
	if p.Item != nil {
		p.Item.Author = s
	}
	if p.Entry != nil {
		if p.Entry.Author == nil {
			p.Entry.Author = &AtomPerson{}
		}
		p.Entry.Author.Name = s
	}
}

// GUID returns the post identifier, or "".
func (p Post) GUID() string {
	if p.Item != nil && p.Item.GUID != nil {
		return p.Item.GUID.Value
	}
	if p.Entry != nil {
		return p.Entry.ID
	}
	return ""
}

// SetGUID replaces the post identifier, preserving the RSS isPermaLink flag
// when one is already present.
func (p Post) SetGUID(s string) {
	if p.Item != nil {
		if p.Item.GUID == nil {
			p.Item.GUID = &GUID{}
		}
		p.Item.GUID.Value = s
	}
	if p.Entry != nil {
		p.Entry.ID = s
	}
}

// EnsureGUID makes sure the post carries an identifier, deriving one from
// link and title (or, failing those, a digest of the body) when missing.
// The derived value is returned.
func (p Post) EnsureGUID() string {
	if g := p.GUID(); g != "" {
		return g
	}
	g := p.Link() + p.Title()
	if g == "" {
		sum := blake2s.Sum256([]byte(p.Body()))
		g = hex.EncodeToString(sum[:])
	}
	p.SetGUID(g)
	return g
}

// Date returns the publication timestamp. For Atom entries the published
// element wins over updated.
func (p Post) Date() (time.Time, bool) {
	if p.Item != nil {
		return parseDate(p.Item.PubDate)
	}
	if p.Entry != nil {
		if t, ok := parseDate(p.Entry.Published); ok {
			return t, true
		}
		return parseDate(p.Entry.Updated)
	}
	return time.Time{}, false
}

// SetDate replaces the publication timestamp using the variant's native
// date format.
func (p Post) SetDate(t time.Time) {
	if p.Item != nil {
		p.Item.PubDate = t.Format(time.RFC1123Z)
	}
	if p.Entry != nil {
		p.Entry.Published = t.Format(time.RFC3339)
		if p.Entry.Updated == "" {
			p.Entry.Updated = p.Entry.Published
		}
	}
}

// Bodies returns pointers to every non-empty body slot in priority order:
// content:encoded then description for RSS, content then summary for Atom.
// Filters that rewrite text apply to each slot.
func (p Post) Bodies() []*string {
	var out []*string
	if p.Item != nil {
		if p.Item.Content != "" {
			out = append(out, &p.Item.Content)
		}
		if p.Item.Description != "" {
			out = append(out, &p.Item.Description)
		}
	}
	if p.Entry != nil {
		if p.Entry.Content != nil && p.Entry.Content.Value != "" {
			out = append(out, &p.Entry.Content.Value)
		}
		if p.Entry.Summary != nil && p.Entry.Summary.Value != "" {
			out = append(out, &p.Entry.Summary.Value)
		}
	}
	return out
}

// Body returns the primary HTML content: the first non-empty body slot.
func (p Post) Body() string {
	if bs := p.Bodies(); len(bs) > 0 {
		return *bs[0]
	}
	return ""
}

// SetBody replaces the primary content. When the post has no body slot yet,
// the RSS description (or Atom summary) is created.
func (p Post) SetBody(s string) {
	if p.Item != nil {
		if p.Item.Content != "" {
			p.Item.Content = s
		} else {
			p.Item.Description = s
		}
	}
	if p.Entry != nil {
		switch {
		case p.Entry.Content != nil && p.Entry.Content.Value != "":
			p.Entry.Content.Value = s
		case p.Entry.Summary != nil && p.Entry.Summary.Value != "":
			p.Entry.Summary.Value = s
		default:
			p.Entry.Summary = &AtomText{Type: "html", Value: s}
		}
	}
}

// ClearBodies empties every body slot.
func (p Post) ClearBodies() {
	if p.Item != nil {
		p.Item.Content = ""
		p.Item.Description = ""
	}
	if p.Entry != nil {
		p.Entry.Content = nil
		p.Entry.Summary = nil
	}
}

// Clone returns a deep copy of the post.
func (p Post) Clone() Post {
	var c Post
	if p.Item != nil {
		c.Item = p.Item.clone()
	}
	if p.Entry != nil {
		c.Entry = p.Entry.clone()
	}
	return c
}
