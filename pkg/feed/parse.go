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
	"encoding/xml"
	"io"
	"mime"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// Parse converts raw bytes into a Feed. The content type steers the parser;
// ambiguous or missing types are sniffed. base is the URL the bytes came
// from and anchors the single-post feed built from plain HTML pages.
func Parse(data []byte, contentType, base string) (*Feed, error) {
	essence, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		essence = strings.ToLower(strings.TrimSpace(contentType))
	}

	// The HTTP charset applies to the whole body, before any XML
	// declaration is seen.
	if cs := params["charset"]; cs != "" && !strings.EqualFold(cs, "utf-8") {
		data = transcode(data, cs)
	}

	switch essence {
	case "application/json", "application/feed+json":
		return parseJSONFeed(bytes.NewReader(data))
	case "text/html", "application/xhtml+xml":
		return parseHTMLPage(data, contentType, base)
	case "application/rss+xml", "application/atom+xml", "application/xml", "text/xml":
		return parseXML(data, contentType, base)
	}

	// Unknown or generic content type: sniff.
	switch gofeed.DetectFeedType(bytes.NewReader(data)) {
	case gofeed.FeedTypeJSON:
		return parseJSONFeed(bytes.NewReader(data))
	case gofeed.FeedTypeRSS, gofeed.FeedTypeAtom:
		return parseXML(data, contentType, base)
	}
	if looksLikeHTML(data) {
		return parseHTMLPage(data, contentType, base)
	}
	return nil, errors.Errorf("unsupported content type %q", contentType)
}

// parseXML dispatches on the document element: <rss> or <feed>. HTML pages
// served with an XML content type still end up in the HTML importer.
func parseXML(data []byte, contentType, base string) (*Feed, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charsetReader
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, errors.New("no document element found")
		}
		if err != nil {
			return nil, errors.Wrap(err, "parse feed")
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "rss":
			var doc RSS
			if err := dec.DecodeElement(&doc, &se); err != nil {
				return nil, errors.Wrap(err, "parse rss feed")
			}
			if doc.Channel == nil {
				doc.Channel = &Channel{}
			}
			if doc.Version == "" {
				doc.Version = "2.0"
			}
			return &Feed{rss: &doc, format: FormatRSS}, nil
		case "feed":
			var doc AtomFeed
			if err := dec.DecodeElement(&doc, &se); err != nil {
				return nil, errors.Wrap(err, "parse atom feed")
			}
			return &Feed{atom: &doc, format: FormatAtom}, nil
		case "html":
			return parseHTMLPage(data, contentType, base)
		default:
			return nil, errors.Errorf("unsupported feed document element <%s>", se.Name.Local)
		}
	}
}

// charsetReader decodes the encodings feeds declare in their XML prolog.
// Unrecognized labels fall back to UTF-8 with replacement runes.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	r, err := charset.NewReaderLabel(label, input)
	if err != nil {
		return unicode.UTF8.NewDecoder().Reader(input), nil
	}
	return r, nil
}

// transcode converts body bytes from the named charset to UTF-8, replacing
// undecodable bytes rather than failing.
func transcode(data []byte, label string) []byte {
	enc, err := htmlindex.Get(label)
	if err != nil {
		out, _ := unicode.UTF8.NewDecoder().Bytes(data)
		return out
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return out
}

func looksLikeHTML(data []byte) bool {
	head := strings.ToLower(string(bytes.TrimSpace(data)))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}
