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

// Package filter implements the feed transformations an endpoint chains
// into its pipeline. Filters are built once at config load from their YAML
// options through a registry; at request time each filter mutates the feed
// in place. Post-wise filters fan out over the posts through MapPosts and
// absorb per-post failures, feed-wise filters fail the whole request.
package filter

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/rssfunnel/funnel/pkg/feed"
	"github.com/rssfunnel/funnel/pkg/fetch"
)

// DefaultParallelism bounds post-wise fan-out when a filter does not carry
// its own setting.
const DefaultParallelism = 20

// Filter transforms a feed in place. An error fails the whole pipeline;
// per-post trouble is handled inside the filter instead.
type Filter interface {
	Run(ctx context.Context, f *feed.Feed) error
}

// BuildOptions carries the process-wide pieces filters receive at build
// time: the shared response cache and the endpoint's client defaults.
type BuildOptions struct {
	Cache         *fetch.Cache
	ClientOptions fetch.Options
}

// NewClient builds an outbound client for a filter, overlaying per-filter
// options on the endpoint defaults and attaching the shared cache.
func (o BuildOptions) NewClient(over fetch.Options) (*fetch.Client, error) {
	return fetch.NewClient(o.ClientOptions.Merge(over), o.Cache)
}

// Spec is one element of an endpoint's filter list: a single-key mapping
// naming the filter kind and carrying its options.
type Spec struct {
	Name string
	conf yaml.Node
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return errors.New("filter must be a single-key mapping, e.g. `- simplify_html: {}`")
	}
	if err := node.Content[0].Decode(&s.Name); err != nil {
		return err
	}
	s.conf = *node.Content[1]
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Spec) MarshalYAML() (interface{}, error) {
	var conf interface{}
	if s.conf.Kind != 0 {
		if err := s.conf.Decode(&conf); err != nil {
			return nil, err
		}
	}
	return map[string]interface{}{s.Name: conf}, nil
}

// MarshalJSON keeps the inspector's config dump in the YAML shape.
func (s Spec) MarshalJSON() ([]byte, error) {
	v, err := s.MarshalYAML()
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// entry describes one registered filter kind.
type entry struct {
	build  func(node *yaml.Node, opts BuildOptions) (Filter, error)
	schema func() *jsonschema.Schema
}

var registry map[string]entry

// init populates the registry after package variables are initialized;
// assigning the literal directly would form an initialization cycle through
// newMerge, which calls Build.
func init() {
	registry = map[string]entry{
		"full_text":      {build: buildWith(newFullText), schema: schemaOf(FullTextConfig{})},
		"simplify_html":  {build: buildWith(newSimplifyHTML), schema: schemaOf(SimplifyHTMLConfig{})},
		"keep_element":   {build: buildWith(newKeepElement), schema: schemaOf(KeepElementConfig(""))},
		"remove_element": {build: buildWith(newRemoveElement), schema: schemaOf(RemoveElementConfig{})},
		"split":          {build: buildWith(newSplit), schema: schemaOf(SplitConfig{})},
		"sanitize":       {build: buildWith(newSanitize), schema: schemaOf(SanitizeConfig{})},
		"keep_only":      {build: buildWith(newKeepOnly), schema: schemaOf(SelectConfig{})},
		"discard":        {build: buildWith(newDiscard), schema: schemaOf(SelectConfig{})},
		"highlight":      {build: buildWith(newHighlight), schema: schemaOf(HighlightConfig{})},
		"merge":          {build: buildWith(newMerge), schema: schemaOf(MergeConfig{})},
		"convert_to":     {build: buildWith(newConvertTo), schema: schemaOf(ConvertToConfig(""))},
		"note":           {build: buildWith(newNote), schema: schemaOf(NoteConfig(""))},
		"limit":          {build: buildWith(newLimit), schema: schemaOf(LimitConfig{})},
		"modify_post":    {build: buildWith(newModifyPost), schema: schemaOf(ModifyPostConfig(""))},
		"modify_feed":    {build: buildWith(newModifyFeed), schema: schemaOf(ModifyFeedConfig(""))},
		"js":             {build: buildWith(newJS), schema: schemaOf(JSConfig(""))},
	}
}

// buildWith adapts a typed constructor to the registry shape, decoding the
// YAML options into the config type first. A null or absent options node
// yields the zero config.
func buildWith[C any](f func(C, BuildOptions) (Filter, error)) func(*yaml.Node, BuildOptions) (Filter, error) {
	return func(node *yaml.Node, opts BuildOptions) (Filter, error) {
		var conf C
		if node != nil && node.Kind != 0 && node.Tag != "!!null" {
			if err := node.Decode(&conf); err != nil {
				return nil, err
			}
		}
		return f(conf, opts)
	}
}

func schemaOf(conf interface{}) func() *jsonschema.Schema {
	return func() *jsonschema.Schema {
		reflector := jsonschema.Reflector{DoNotReference: true}
		return reflector.Reflect(conf)
	}
}

// Known reports whether name is a registered filter kind.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names lists the registered filter kinds, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build prepares the filter a Spec names. Unknown kinds and bad options are
// configuration errors.
func Build(spec Spec, opts BuildOptions) (Filter, error) {
	ent, ok := registry[spec.Name]
	if !ok {
		return nil, errors.Errorf("unknown filter %q", spec.Name)
	}
	flt, err := ent.build(&spec.conf, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "filter %q", spec.Name)
	}
	return flt, nil
}

// SchemaFor returns the JSON schema of a filter's options.
func SchemaFor(name string) (*jsonschema.Schema, error) {
	ent, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("unknown filter %q", name)
	}
	return ent.schema(), nil
}

// MapPosts runs fn over every post of f with at most parallelism concurrent
// workers, zero meaning DefaultParallelism. Post order is preserved. fn
// reporting keep=false drops the post; an error from fn keeps the post
// as-is and logs a warning. MapPosts returns an error only when ctx is
// cancelled.
func MapPosts(ctx context.Context, f *feed.Feed, parallelism int, fn func(context.Context, feed.Post) (bool, error)) error {
	posts := f.Posts()
	if len(posts) == 0 {
		return nil
	}
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	keep := make([]bool, len(posts))
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup
	for i := range posts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			keep[i] = true
			if ctx.Err() != nil {
				return
			}
			ok, err := fn(ctx, posts[i])
			if err != nil {
				log.Printf("WARN filter: post %q left unchanged: %v", posts[i].Title(), err)
				return
			}
			keep[i] = ok
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	kept := make([]feed.Post, 0, len(posts))
	for i, p := range posts {
		if keep[i] {
			kept = append(kept, p)
		}
	}
	if len(kept) != len(posts) {
		f.SetPosts(kept)
	}
	return nil
}

// OneOrMany accepts a bare string where a list is expected.
type OneOrMany []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *OneOrMany) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*o = OneOrMany{s}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*o = OneOrMany(list)
	return nil
}
