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
	"fmt"
	"html"
	"log"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/rssfunnel/funnel/pkg/feed"
	"github.com/rssfunnel/funnel/pkg/fetch"
	"github.com/rssfunnel/funnel/pkg/source"
)

// MergeConfig pulls extra sources into the feed. The short YAML forms are a
// bare source (URL, scratch or opml) or a list of them; the full mapping
// adds client options and a sub-pipeline applied to each source before it
// is merged.
type MergeConfig struct {
	Source      sourceList    `yaml:"source" json:"source"`
	Parallelism int           `yaml:"parallelism,omitempty" json:"parallelism,omitempty"`
	Client      fetch.Options `yaml:"client,omitempty" json:"client,omitempty"`
	Filters     []Spec        `yaml:"filters,omitempty" json:"filters,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler. A mapping with a source key is
// the full form; anything else is read as the source shorthand.
func (c *MergeConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode && hasKey(node, "source") {
		type plain MergeConfig
		return node.Decode((*plain)(c))
	}
	return node.Decode(&c.Source)
}

func hasKey(node *yaml.Node, key string) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}

// sourceList accepts one source where a list of sources is expected.
type sourceList []source.Spec

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *sourceList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var specs []source.Spec
		if err := node.Decode(&specs); err != nil {
			return err
		}
		*l = sourceList(specs)
		return nil
	}
	var spec source.Spec
	if err := node.Decode(&spec); err != nil {
		return err
	}
	*l = sourceList{spec}
	return nil
}

// merge fetches its sources in parallel, runs the sub-filters over each,
// and folds the results into the feed. A failed source becomes an error
// post; the filter only fails when every source failed. After merging,
// posts are deduplicated by guid and re-sorted newest first.
type merge struct {
	sources     []source.Spec
	parallelism int
	client      *fetch.Client
	names       []string
	filters     []Filter
}

func newMerge(conf MergeConfig, opts BuildOptions) (Filter, error) {
	if len(conf.Source) == 0 {
		return nil, errors.New("merge needs at least one source")
	}
	client, err := opts.NewClient(conf.Client)
	if err != nil {
		return nil, err
	}
	m := &merge{
		sources:     conf.Source,
		parallelism: conf.Parallelism,
		client:      client,
	}
	if m.parallelism <= 0 {
		m.parallelism = DefaultParallelism
	}

	// Sub-filters inherit the merge's client options as their defaults.
	subOpts := opts
	subOpts.ClientOptions = opts.ClientOptions.Merge(conf.Client)
	for _, spec := range conf.Filters {
		flt, err := Build(spec, subOpts)
		if err != nil {
			return nil, err
		}
		m.filters = append(m.filters, flt)
		m.names = append(m.names, spec.Name)
	}
	return m, nil
}

func (m *merge) Run(ctx context.Context, f *feed.Feed) error {
	type result struct {
		feed *feed.Feed
		err  error
	}
	results := make([]result, len(m.sources))
	sem := make(chan struct{}, m.parallelism)
	var wg sync.WaitGroup
	for i, spec := range m.sources {
		wg.Add(1)
		go func(i int, spec source.Spec) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			sub, err := m.resolveOne(ctx, spec)
			results[i] = result{feed: sub, err: err}
		}(i, spec)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	failed := 0
	var firstErr error
	for i, res := range results {
		if res.err != nil {
			failed++
			if firstErr == nil {
				firstErr = res.err
			}
			log.Printf("WARN merge: source %s: %v", sourceDesc(m.sources[i]), res.err)
		}
	}
	if failed == len(m.sources) {
		return errors.Wrapf(firstErr, "all %d merge sources failed", len(m.sources))
	}

	for i, res := range results {
		if res.err != nil {
			appendErrorPost(f, sourceDesc(m.sources[i]), res.err)
			continue
		}
		if err := res.feed.ConvertTo(f.Variant()); err != nil {
			return err
		}
		if err := f.Merge(res.feed); err != nil {
			return err
		}
	}
	f.DedupeByGUID()
	f.Reorder()
	return nil
}

// resolveOne fetches one source and runs the sub-filters over it.
func (m *merge) resolveOne(ctx context.Context, spec source.Spec) (*feed.Feed, error) {
	sub, err := source.Resolve(ctx, spec, m.client)
	if err != nil {
		return nil, err
	}
	for i, flt := range m.filters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := flt.Run(ctx, sub); err != nil {
			return nil, errors.Wrapf(err, "sub-filter %d (%s)", i+1, m.names[i])
		}
	}
	return sub, nil
}

// appendErrorPost surfaces a failed source inside the feed instead of
// failing the request.
func appendErrorPost(f *feed.Feed, desc string, err error) {
	p := f.NewPost()
	p.SetTitle("Failed fetching source")
	p.SetLink(desc)
	p.SetBody(fmt.Sprintf("<p>Source: %s</p><p>Error: %s</p>",
		html.EscapeString(desc), html.EscapeString(err.Error())))
	f.SetPosts(append(f.Posts(), p))
}

// sourceDesc names a source for logs and error posts.
func sourceDesc(spec source.Spec) string {
	switch {
	case spec.URL != "":
		return spec.URL
	case spec.OPML != "":
		return "opml " + spec.OPML
	case spec.Scratch != nil:
		return "scratch feed"
	}
	return "empty source"
}
