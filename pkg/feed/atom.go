package feed

import "encoding/xml"

const nsAtom = "http://www.w3.org/2005/Atom"

// AtomFeed is the document element of an Atom feed.
type AtomFeed struct {
	XMLName  xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Title    AtomText    `xml:"title"`
	Subtitle *AtomText   `xml:"subtitle,omitempty"`
	ID       string      `xml:"id,omitempty"`
	Updated  string      `xml:"updated,omitempty"`
	Author   *AtomPerson `xml:"author,omitempty"`
	Links    []AtomLink  `xml:"link"`
	Ext      []Extension `xml:",any"`
	Entries  []*Entry    `xml:"entry"`
}

// Entry is a single Atom entry.
type Entry struct {
	Title     AtomText    `xml:"title"`
	ID        string      `xml:"id,omitempty"`
	Updated   string      `xml:"updated,omitempty"`
	Published string      `xml:"published,omitempty"`
	Author    *AtomPerson `xml:"author,omitempty"`
	Links     []AtomLink  `xml:"link"`
	Summary   *AtomText   `xml:"summary,omitempty"`
	Content   *AtomText   `xml:"content,omitempty"`
	Ext       []Extension `xml:",any"`
}

// AtomText is a text construct. For type="html" the value holds the decoded
// HTML string; serialization re-escapes it.
type AtomText struct {
	Type  string `xml:"type,attr,omitempty"`
	Value string `xml:",chardata"`
}

// AtomLink is a link element. An empty Rel means "alternate".
type AtomLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr,omitempty"`
	Type  string `xml:"type,attr,omitempty"`
	Title string `xml:"title,attr,omitempty"`
}

// AtomPerson is an author or contributor.
type AtomPerson struct {
	Name  string `xml:"name,omitempty"`
	URI   string `xml:"uri,omitempty"`
	Email string `xml:"email,omitempty"`
}

func newAtom(title, link, subtitle string) *AtomFeed {
	f := &AtomFeed{Title: AtomText{Value: title}}
	if link != "" {
		f.Links = append(f.Links, AtomLink{Href: link})
	}
	if subtitle != "" {
		f.Subtitle = &AtomText{Value: subtitle}
	}
	return f
}

// alternateLink returns the href of the first alternate (or untyped) link.
func alternateLink(links []AtomLink) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
	}
	return ""
}

// setAlternateLink rewrites the first alternate link, adding one if missing.
func setAlternateLink(links []AtomLink, href string) []AtomLink {
	for i, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			links[i].Href = href
			return links
		}
	}
	return append(links, AtomLink{Href: href})
}

// clone returns a deep copy of the entry.
func (e *Entry) clone() *Entry {
	c := *e
	if e.Author != nil {
		a := *e.Author
		c.Author = &a
	}
	if e.Summary != nil {
		s := *e.Summary
		c.Summary = &s
	}
	if e.Content != nil {
		ct := *e.Content
		c.Content = &ct
	}
	c.Links = append([]AtomLink(nil), e.Links...)
	c.Ext = append([]Extension(nil), e.Ext...)
	return &c
}
