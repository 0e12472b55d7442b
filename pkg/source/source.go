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

// Package source turns an endpoint's source definition into a feed. A
// source is one of: a URL (remote, or a path on this service resolved as a
// recursive endpoint invocation), a scratch definition for an empty feed,
// or an OPML listing whose feeds are fetched and merged.
package source

import (
	"encoding/json"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/rssfunnel/funnel/pkg/feed"
)

// Scratch describes an empty feed built from literal metadata.
type Scratch struct {
	Format      feed.Format `yaml:"format,omitempty" json:"format,omitempty"`
	Title       string      `yaml:"title" json:"title"`
	Link        string      `yaml:"link,omitempty" json:"link,omitempty"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
}

// Spec is the source half of an endpoint definition. At most one field is
// set; the YAML forms are a bare URL string, a scratch mapping and an
// `{opml: url}` mapping.
type Spec struct {
	URL     string
	Scratch *Scratch
	OPML    string
}

// IsZero reports whether no source is configured, in which case the request
// must carry ?source=.
func (s Spec) IsZero() bool {
	return s.URL == "" && s.Scratch == nil && s.OPML == ""
}

// FromURL builds a Spec for a request-supplied source URL.
func FromURL(url string) Spec {
	return Spec{URL: url}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var url string
		if err := node.Decode(&url); err != nil {
			return err
		}
		if url == "" {
			return errors.New("source URL is empty")
		}
		*s = Spec{URL: url}
		return nil

	case yaml.MappingNode:
		var probe struct {
			OPML        string `yaml:"opml"`
			Format      string `yaml:"format"`
			Title       string `yaml:"title"`
			Link        string `yaml:"link"`
			Description string `yaml:"description"`
		}
		if err := node.Decode(&probe); err != nil {
			return err
		}
		if probe.OPML != "" {
			*s = Spec{OPML: probe.OPML}
			return nil
		}
		format := feed.Format(probe.Format)
		if probe.Format != "" {
			parsed, err := feed.ParseFormat(probe.Format)
			if err != nil {
				return err
			}
			format = parsed
		}
		*s = Spec{Scratch: &Scratch{
			Format:      format,
			Title:       probe.Title,
			Link:        probe.Link,
			Description: probe.Description,
		}}
		return nil
	}
	return errors.New("source must be a URL string or a mapping")
}

// MarshalYAML implements yaml.Marshaler, reproducing the config shape.
func (s Spec) MarshalYAML() (interface{}, error) {
	switch {
	case s.URL != "":
		return s.URL, nil
	case s.OPML != "":
		return map[string]string{"opml": s.OPML}, nil
	case s.Scratch != nil:
		return s.Scratch, nil
	}
	return nil, nil
}

// MarshalJSON keeps the inspector's config dump in the YAML shape.
func (s Spec) MarshalJSON() ([]byte, error) {
	v, err := s.MarshalYAML()
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
