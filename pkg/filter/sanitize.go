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

	"github.com/rssfunnel/funnel/pkg/feed"
)

// SanitizeConfig is an ordered list of text operations applied to every
// body slot of every post.
type SanitizeConfig []SanitizeOp

// SanitizeOp carries exactly one operation. case_sensitive defaults to
// true.
type SanitizeOp struct {
	Remove        string  `yaml:"remove,omitempty" json:"remove,omitempty"`
	RemoveRegex   string  `yaml:"remove_regex,omitempty" json:"remove_regex,omitempty"`
	Replace       *FromTo `yaml:"replace,omitempty" json:"replace,omitempty"`
	ReplaceRegex  *FromTo `yaml:"replace_regex,omitempty" json:"replace_regex,omitempty"`
	CaseSensitive *bool   `yaml:"case_sensitive,omitempty" json:"case_sensitive,omitempty"`
}

// FromTo is a replacement pair. In the regex form, to may use $1 and
// ${name} backreferences.
type FromTo struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// sanitizeRule is a compiled op: either a literal replacement or a regex
// one.
type sanitizeRule struct {
	re   *regexp.Regexp
	from string
	to   string
}

func (r sanitizeRule) apply(s string) string {
	if r.re != nil {
		return r.re.ReplaceAllString(s, r.to)
	}
	return strings.ReplaceAll(s, r.from, r.to)
}

type sanitize struct {
	rules []sanitizeRule
}

func newSanitize(conf SanitizeConfig, _ BuildOptions) (Filter, error) {
	if len(conf) == 0 {
		return nil, errors.New("sanitize needs at least one operation")
	}
	rules := make([]sanitizeRule, 0, len(conf))
	for i, op := range conf {
		rule, err := compileOp(op)
		if err != nil {
			return nil, errors.Wrapf(err, "op %d", i+1)
		}
		rules = append(rules, rule)
	}
	return &sanitize{rules: rules}, nil
}

func compileOp(op SanitizeOp) (sanitizeRule, error) {
	caseSensitive := op.CaseSensitive == nil || *op.CaseSensitive

	set := 0
	for _, on := range []bool{op.Remove != "", op.RemoveRegex != "", op.Replace != nil, op.ReplaceRegex != nil} {
		if on {
			set++
		}
	}
	if set != 1 {
		return sanitizeRule{}, errors.New("need exactly one of remove, remove_regex, replace, replace_regex")
	}

	literal := func(from, to string) (sanitizeRule, error) {
		if caseSensitive {
			return sanitizeRule{from: from, to: to}, nil
		}
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(from))
		if err != nil {
			return sanitizeRule{}, err
		}
		// $ must not expand in a literal replacement.
		return sanitizeRule{re: re, to: strings.ReplaceAll(to, "$", "$$")}, nil
	}
	pattern := func(from, to string) (sanitizeRule, error) {
		if !caseSensitive {
			from = "(?i)" + from
		}
		re, err := regexp.Compile(from)
		if err != nil {
			return sanitizeRule{}, err
		}
		return sanitizeRule{re: re, to: to}, nil
	}

	switch {
	case op.Remove != "":
		return literal(op.Remove, "")
	case op.RemoveRegex != "":
		return pattern(op.RemoveRegex, "")
	case op.Replace != nil:
		return literal(op.Replace.From, op.Replace.To)
	default:
		return pattern(op.ReplaceRegex.From, op.ReplaceRegex.To)
	}
}

func (s *sanitize) Run(ctx context.Context, f *feed.Feed) error {
	return MapPosts(ctx, f, 0, func(_ context.Context, p feed.Post) (bool, error) {
		for _, body := range p.Bodies() {
			for _, rule := range s.rules {
				*body = rule.apply(*body)
			}
		}
		return true, nil
	})
}
