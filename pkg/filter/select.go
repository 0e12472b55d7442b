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
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/rssfunnel/funnel/pkg/feed"
)

// SelectConfig drives keep_only and discard. Short forms: a bare string or
// a list of strings mean case-insensitive `contains` over title and body.
type SelectConfig struct {
	Contains      OneOrMany `yaml:"contains,omitempty" json:"contains,omitempty"`
	Matches       OneOrMany `yaml:"matches,omitempty" json:"matches,omitempty"`
	Field         string    `yaml:"field,omitempty" json:"field,omitempty" jsonschema:"enum=title,enum=body,enum=link,enum=author,enum=any"`
	CaseSensitive bool      `yaml:"case_sensitive,omitempty" json:"case_sensitive,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler, accepting the short forms.
func (c *SelectConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode || node.Kind == yaml.SequenceNode {
		var list OneOrMany
		if err := node.Decode(&list); err != nil {
			return err
		}
		*c = SelectConfig{Contains: list}
		return nil
	}
	type plain SelectConfig
	var full plain
	if err := node.Decode(&full); err != nil {
		return err
	}
	*c = SelectConfig(full)
	return nil
}

// postMatcher decides whether a post meets any of the configured criteria.
type postMatcher struct {
	literals []string
	patterns []*regexp.Regexp
	field    string
	fold     bool
}

func newPostMatcher(conf SelectConfig) (*postMatcher, error) {
	if len(conf.Contains) == 0 && len(conf.Matches) == 0 {
		return nil, errors.New("need at least one contains or matches criterion")
	}
	switch conf.Field {
	case "", "any", "title", "body", "link", "author":
	default:
		return nil, errors.Errorf("unknown field %q", conf.Field)
	}

	m := &postMatcher{field: conf.Field, fold: !conf.CaseSensitive}
	for _, lit := range conf.Contains {
		if m.fold {
			lit = strings.ToLower(lit)
		}
		m.literals = append(m.literals, lit)
	}
	for _, pat := range conf.Matches {
		if m.fold {
			pat = "(?i)" + pat
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, err
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

func (m *postMatcher) matches(p feed.Post) bool {
	for _, field := range m.fieldValues(p) {
		folded := field
		if m.fold {
			folded = strings.ToLower(field)
		}
		for _, lit := range m.literals {
			if strings.Contains(folded, lit) {
				return true
			}
		}
		for _, re := range m.patterns {
			if re.MatchString(field) {
				return true
			}
		}
	}
	return false
}

func (m *postMatcher) fieldValues(p feed.Post) []string {
	switch m.field {
	case "title":
		return []string{p.Title()}
	case "link":
		return []string{p.Link()}
	case "author":
		return []string{p.Author()}
	case "body":
		var out []string
		for _, b := range p.Bodies() {
			out = append(out, *b)
		}
		return out
	}
	out := []string{p.Title()}
	for _, b := range p.Bodies() {
		out = append(out, *b)
	}
	return out
}

// selectPosts keeps or discards the posts matching its criteria.
type selectPosts struct {
	matcher *postMatcher
	keep    bool
}

func newKeepOnly(conf SelectConfig, _ BuildOptions) (Filter, error) {
	m, err := newPostMatcher(conf)
	if err != nil {
		return nil, err
	}
	return &selectPosts{matcher: m, keep: true}, nil
}

func newDiscard(conf SelectConfig, _ BuildOptions) (Filter, error) {
	m, err := newPostMatcher(conf)
	if err != nil {
		return nil, err
	}
	return &selectPosts{matcher: m, keep: false}, nil
}

func (s *selectPosts) Run(_ context.Context, f *feed.Feed) error {
	posts := f.Posts()
	kept := make([]feed.Post, 0, len(posts))
	for _, p := range posts {
		if s.matcher.matches(p) == s.keep {
			kept = append(kept, p)
		}
	}
	f.SetPosts(kept)
	return nil
}
