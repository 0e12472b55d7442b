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
	"log"
	"time"

	"github.com/dop251/goja"
	"github.com/pkg/errors"

	"github.com/rssfunnel/funnel/pkg/feed"
	"github.com/rssfunnel/funnel/pkg/fetch"
	"github.com/rssfunnel/funnel/pkg/jsvm"
)

const (
	updatePostFn = "update_post"
	updateFeedFn = "update_feed"
)

// ModifyPostConfig is JS source defining update_post(feed, post).
type ModifyPostConfig string

// modifyPost runs update_post over every post in parallel, one VM per
// worker. A null or undefined return deletes the post; a thrown error
// leaves it unchanged.
type modifyPost struct {
	src    string
	client *fetch.Client
}

func newModifyPost(conf ModifyPostConfig, opts BuildOptions) (Filter, error) {
	client, err := opts.NewClient(fetch.Options{})
	if err != nil {
		return nil, err
	}
	if err := validateScript(string(conf), client, updatePostFn); err != nil {
		return nil, err
	}
	return &modifyPost{src: string(conf), client: client}, nil
}

func (m *modifyPost) Run(ctx context.Context, f *feed.Feed) error {
	snapshot := feedToJS(f)
	pool := make(chan *jsvm.VM, DefaultParallelism)

	return MapPosts(ctx, f, DefaultParallelism, func(ctx context.Context, p feed.Post) (bool, error) {
		var vm *jsvm.VM
		select {
		case vm = <-pool:
		default:
			var err error
			vm, err = newScriptVM(ctx, m.src, m.client, updatePostFn)
			if err != nil {
				return true, err
			}
		}
		defer func() {
			select {
			case pool <- vm:
			default:
			}
		}()

		res, err := vm.Call(updatePostFn, snapshot, postToJS(p))
		if err != nil {
			if jsvm.Interrupted(err) {
				return true, nil
			}
			return true, err
		}
		return applyPostResult(p, res)
	})
}

// ModifyFeedConfig is JS source defining update_feed(feed), which must
// return the feed.
type ModifyFeedConfig string

type modifyFeed struct {
	src    string
	client *fetch.Client
}

func newModifyFeed(conf ModifyFeedConfig, opts BuildOptions) (Filter, error) {
	client, err := opts.NewClient(fetch.Options{})
	if err != nil {
		return nil, err
	}
	if err := validateScript(string(conf), client, updateFeedFn); err != nil {
		return nil, err
	}
	return &modifyFeed{src: string(conf), client: client}, nil
}

func (m *modifyFeed) Run(ctx context.Context, f *feed.Feed) error {
	vm, err := newScriptVM(ctx, m.src, m.client, updateFeedFn)
	if err != nil {
		return err
	}
	res, err := vm.Call(updateFeedFn, feedToJS(f))
	if err != nil {
		return err
	}
	if res == nil || goja.IsNull(res) || goja.IsUndefined(res) {
		return errors.Errorf("%s must return the feed", updateFeedFn)
	}
	fm, ok := res.Export().(map[string]interface{})
	if !ok {
		return errors.Errorf("%s returned %T, want the feed object", updateFeedFn, res.Export())
	}
	return applyJSFeed(f, fm)
}

// JSConfig is the legacy script form: source defining update_post(feed,
// post), run sequentially on a single VM.
type JSConfig string

type jsFilter struct {
	src    string
	client *fetch.Client
}

func newJS(conf JSConfig, opts BuildOptions) (Filter, error) {
	client, err := opts.NewClient(fetch.Options{})
	if err != nil {
		return nil, err
	}
	if err := validateScript(string(conf), client, updatePostFn); err != nil {
		return nil, err
	}
	return &jsFilter{src: string(conf), client: client}, nil
}

func (j *jsFilter) Run(ctx context.Context, f *feed.Feed) error {
	vm, err := newScriptVM(ctx, j.src, j.client, updatePostFn)
	if err != nil {
		return err
	}

	snapshot := feedToJS(f)
	posts := f.Posts()
	kept := make([]feed.Post, 0, len(posts))
	for _, p := range posts {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := vm.Call(updatePostFn, snapshot, postToJS(p))
		if err != nil {
			if jsvm.Interrupted(err) {
				return errors.WithStack(err)
			}
			log.Printf("WARN js: post %q left unchanged: %v", p.Title(), err)
			kept = append(kept, p)
			continue
		}
		keep, err := applyPostResult(p, res)
		if err != nil {
			log.Printf("WARN js: post %q left unchanged: %v", p.Title(), err)
			kept = append(kept, p)
			continue
		}
		if keep {
			kept = append(kept, p)
		}
	}
	f.SetPosts(kept)
	return nil
}

// validateScript evaluates the script once at build time so that syntax
// errors and a missing entry function surface as configuration errors.
func validateScript(src string, client *fetch.Client, fn string) error {
	if src == "" {
		return errors.New("script is empty")
	}
	_, err := newScriptVM(context.Background(), src, client, fn)
	return err
}

func newScriptVM(ctx context.Context, src string, client *fetch.Client, fn string) (*jsvm.VM, error) {
	vm, err := jsvm.New(ctx, client)
	if err != nil {
		return nil, err
	}
	if err := vm.Eval(src); err != nil {
		return nil, errors.Wrap(err, "evaluate script")
	}
	if !vm.Has(fn) {
		return nil, errors.Errorf("script must define function %s", fn)
	}
	return vm, nil
}

// applyPostResult folds an update_post return value back into the post.
// Null and undefined delete the post.
func applyPostResult(p feed.Post, res goja.Value) (bool, error) {
	if res == nil || goja.IsNull(res) || goja.IsUndefined(res) {
		return false, nil
	}
	pm, ok := res.Export().(map[string]interface{})
	if !ok {
		return true, errors.Errorf("%s returned %T, want a post object or null", updatePostFn, res.Export())
	}
	applyJSPost(p, pm)
	return true, nil
}

// postToJS builds the post object scripts see. Absent fields are null.
func postToJS(p feed.Post) map[string]interface{} {
	m := map[string]interface{}{
		"title":  nil,
		"link":   nil,
		"author": nil,
		"guid":   nil,
		"date":   nil,
		"body":   nil,
	}
	if s := p.Title(); s != "" {
		m["title"] = s
	}
	if s := p.Link(); s != "" {
		m["link"] = s
	}
	if s := p.Author(); s != "" {
		m["author"] = s
	}
	if s := p.GUID(); s != "" {
		m["guid"] = s
	}
	if t, ok := p.Date(); ok {
		m["date"] = t.Format(time.RFC3339)
	}
	if s := p.Body(); s != "" {
		m["body"] = s
	}
	return m
}

// feedToJS builds the feed object scripts see.
func feedToJS(f *feed.Feed) map[string]interface{} {
	posts := f.Posts()
	arr := make([]interface{}, len(posts))
	for i, p := range posts {
		arr[i] = postToJS(p)
	}
	return map[string]interface{}{
		"format":      string(f.Format()),
		"title":       f.Title(),
		"link":        f.Link(),
		"description": f.Description(),
		"posts":       arr,
	}
}

// applyJSPost replaces the scriptable fields of p with the object's. The
// guid is only overwritten when the script set one, and the date only when
// it parses; everything else, including extensions, stays.
func applyJSPost(p feed.Post, m map[string]interface{}) {
	str := func(key string) (string, bool) {
		v, ok := m[key]
		if !ok || v == nil {
			return "", false
		}
		s, ok := v.(string)
		return s, ok
	}

	if s, ok := str("title"); ok {
		p.SetTitle(s)
	} else {
		p.SetTitle("")
	}
	if s, ok := str("link"); ok {
		p.SetLink(s)
	} else {
		p.SetLink("")
	}
	if s, ok := str("author"); ok {
		p.SetAuthor(s)
	} else {
		p.SetAuthor("")
	}
	if s, ok := str("guid"); ok {
		p.SetGUID(s)
	}
	if s, ok := str("date"); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			p.SetDate(t)
		}
	}
	if s, ok := str("body"); ok {
		p.SetBody(s)
	} else {
		p.ClearBodies()
	}
}

// applyJSFeed replaces feed metadata and rebuilds the post list from the
// returned feed object. Posts are matched to the existing ones by guid so
// untouched posts keep their extensions; unmatched objects become new
// posts.
func applyJSFeed(f *feed.Feed, m map[string]interface{}) error {
	if s, ok := m["title"].(string); ok {
		f.SetTitle(s)
	}
	if s, ok := m["link"].(string); ok {
		f.SetLink(s)
	}
	if s, ok := m["description"].(string); ok {
		f.SetDescription(s)
	}

	if raw, ok := m["posts"].([]interface{}); ok {
		byGUID := map[string]feed.Post{}
		for _, p := range f.Posts() {
			if g := p.GUID(); g != "" {
				byGUID[g] = p
			}
		}
		posts := make([]feed.Post, 0, len(raw))
		for _, rp := range raw {
			pm, ok := rp.(map[string]interface{})
			if !ok {
				return errors.Errorf("feed.posts contains %T, want post objects", rp)
			}
			p := f.NewPost()
			if g, ok := pm["guid"].(string); ok && g != "" {
				if orig, found := byGUID[g]; found {
					p = orig
				}
			}
			applyJSPost(p, pm)
			posts = append(posts, p)
		}
		f.SetPosts(posts)
	}

	if s, ok := m["format"].(string); ok && s != string(f.Format()) {
		format, err := feed.ParseFormat(s)
		if err != nil {
			return err
		}
		return f.ConvertTo(format)
	}
	return nil
}

