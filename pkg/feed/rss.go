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

import "encoding/xml"

// nsContent is the RSS content module namespace used for content:encoded.
const nsContent = "http://purl.org/rss/1.0/modules/content/"

// Extension is an XML element the model does not interpret. The element is
// kept as raw bytes so a feed round-trips without losing foreign-namespace
// data. Serialization may respell the namespace prefix, never the meaning.
type Extension struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}

// RSS is the document element of an RSS 2.0 feed.
type RSS struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Attrs   []xml.Attr `xml:",any,attr"`
	Channel *Channel   `xml:"channel"`
}

// Channel holds the feed metadata and the items.
type Channel struct {
	Title          string       `xml:"title"`
	Link           string       `xml:"link"`
	Description    string       `xml:"description"`
	Language       string       `xml:"language,omitempty"`
	Copyright      string       `xml:"copyright,omitempty"`
	ManagingEditor string       `xml:"managingEditor,omitempty"`
	WebMaster      string       `xml:"webMaster,omitempty"`
	PubDate        string       `xml:"pubDate,omitempty"`
	LastBuildDate  string       `xml:"lastBuildDate,omitempty"`
	Generator      string       `xml:"generator,omitempty"`
	Docs           string       `xml:"docs,omitempty"`
	TTL            string       `xml:"ttl,omitempty"`
	Image          *Image       `xml:"image,omitempty"`
	Ext            []Extension  `xml:",any"`
	Items          []*Item      `xml:"item"`
}

// Image is the optional channel image.
type Image struct {
	URL    string `xml:"url"`
	Title  string `xml:"title,omitempty"`
	Link   string `xml:"link,omitempty"`
	Width  string `xml:"width,omitempty"`
	Height string `xml:"height,omitempty"`
}

// Item is a single RSS item.
type Item struct {
	Title       string      `xml:"title,omitempty"`
	Link        string      `xml:"link,omitempty"`
	Description string      `xml:"description,omitempty"`
	Content     string      `xml:"http://purl.org/rss/1.0/modules/content/ encoded,omitempty"`
	Author      string      `xml:"author,omitempty"`
	Categories  []string    `xml:"category,omitempty"`
	Comments    string      `xml:"comments,omitempty"`
	Enclosure   *Enclosure  `xml:"enclosure,omitempty"`
	GUID        *GUID       `xml:"guid,omitempty"`
	PubDate     string      `xml:"pubDate,omitempty"`
	Ext         []Extension `xml:",any"`
}

// GUID is the item identifier. IsPermaLink defaults to true in RSS when the
// attribute is absent.
type GUID struct {
	IsPermaLink string `xml:"isPermaLink,attr,omitempty"`
	Value       string `xml:",chardata"`
}

// Enclosure is an attached media object.
type Enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr,omitempty"`
	Type   string `xml:"type,attr,omitempty"`
}

func newRSS(title, link, description string) *RSS {
	return &RSS{
		Version: "2.0",
		Channel: &Channel{
			Title:       title,
			Link:        link,
			Description: description,
		},
	}
}

// clone returns a deep copy of the item.
func (it *Item) clone() *Item {
	c := *it
	if it.Enclosure != nil {
		e := *it.Enclosure
		c.Enclosure = &e
	}
	if it.GUID != nil {
		g := *it.GUID
		c.GUID = &g
	}
	c.Categories = append([]string(nil), it.Categories...)
	c.Ext = append([]Extension(nil), it.Ext...)
	return &c
}
