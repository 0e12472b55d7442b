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

// Package pipeline runs an endpoint's filters over a feed, in config
// order. Pipelines are built once per config load and are safe for
// concurrent requests; all request state lives in the feed and context.
package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rssfunnel/funnel/pkg/feed"
	"github.com/rssfunnel/funnel/pkg/filter"
)

// Pipeline is an ordered chain of built filters.
type Pipeline struct {
	names   []string
	filters []filter.Filter
}

// New builds every filter in specs. A bad spec fails the whole pipeline,
// which callers treat as a configuration error.
func New(specs []filter.Spec, opts filter.BuildOptions) (*Pipeline, error) {
	p := &Pipeline{
		names:   make([]string, 0, len(specs)),
		filters: make([]filter.Filter, 0, len(specs)),
	}
	for _, spec := range specs {
		flt, err := filter.Build(spec, opts)
		if err != nil {
			return nil, err
		}
		p.names = append(p.names, spec.Name)
		p.filters = append(p.filters, flt)
	}
	return p, nil
}

// Names lists the filter kinds in pipeline order.
func (p *Pipeline) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Len is the number of filters.
func (p *Pipeline) Len() int { return len(p.filters) }

// Limits restricts a single run, driven by the limit_posts and
// limit_filters request parameters. A negative value means no limit.
type Limits struct {
	Posts   int
	Filters int
}

// NoLimits runs every filter over every post.
var NoLimits = Limits{Posts: -1, Filters: -1}

// Run applies the filters to f in order. The post limit truncates the feed
// before the first filter; the filter limit stops the chain after that many
// filters, which the inspector uses to preview intermediate stages.
func (p *Pipeline) Run(ctx context.Context, f *feed.Feed, lim Limits) error {
	if lim.Posts >= 0 {
		f.Truncate(lim.Posts)
	}
	n := len(p.filters)
	if lim.Filters >= 0 && lim.Filters < n {
		n = lim.Filters
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.filters[i].Run(ctx, f); err != nil {
			return errors.Wrapf(err, "error running filter %d (%s)", i+1, p.names[i])
		}
	}
	return nil
}
