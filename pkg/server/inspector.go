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

package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/mmcdole/gofeed"

	"github.com/rssfunnel/funnel/pkg/config"
	"github.com/rssfunnel/funnel/pkg/feed"
	"github.com/rssfunnel/funnel/pkg/filter"
)

// serveInspectorConfig dumps the loaded config for the UI, password
// redacted, together with the pending reload error if any.
func (app *App) serveInspectorConfig(w http.ResponseWriter, r *http.Request) {
	snap := app.snapshot()
	var errStr *string
	if snap.err != nil {
		s := snap.err.Error()
		errStr = &s
	}
	respondJSON(w, struct {
		ConfigError *string      `json:"config_error"`
		RootConfig  *config.Root `json:"root_config"`
	}{errStr, snap.root.Redacted()})
}

// serveFilterSchema returns the JSON Schema of each requested filter's
// options, keyed by filter name. `filters=all` covers the whole catalog.
func (app *App) serveFilterSchema(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Query().Get("filters")
	names := filter.Names()
	if param != "all" {
		names = strings.Split(param, ",")
	}
	schemas := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		schema, err := filter.SchemaFor(name)
		if err != nil {
			http.Error(w, fmt.Sprintf("unknown filter: %s", name), http.StatusBadRequest)
			return
		}
		schemas[name] = schema
	}
	respondJSON(w, schemas)
}

type previewPost struct {
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
	Link   string `json:"link,omitempty"`
	GUID   string `json:"guid,omitempty"`
	Date   string `json:"date,omitempty"`
	Body   string `json:"body,omitempty"`
}

type previewUnified struct {
	Title       string        `json:"title"`
	Link        string        `json:"link,omitempty"`
	Description string        `json:"description,omitempty"`
	Posts       []previewPost `json:"posts"`
}

type previewResponse struct {
	Raw         string          `json:"raw"`
	JSON        json.RawMessage `json:"json,omitempty"`
	Unified     *previewUnified `json:"unified,omitempty"`
	PostCount   int             `json:"post_count"`
	ContentType string          `json:"content_type"`
}

// servePreview runs an endpoint exactly like a feed request would and
// returns the outcome in all the shapes the UI needs.
func (app *App) servePreview(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("endpoint")
	if path == "" {
		http.Error(w, "endpoint parameter is required", http.StatusBadRequest)
		return
	}

	snap := app.snapshot()
	ep, ok := snap.endpoints[path]
	if !ok {
		if snap.err != nil {
			http.Error(w, fmt.Sprintf("configuration error: %v", snap.err), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "endpoint not defined: "+path, http.StatusNotFound)
		return
	}

	params, err := parseParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f, err := app.produce(r, snap, ep, params)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := convertForResponse(f, params.format, ""); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	raw, err := f.Marshal(true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := previewResponse{
		Raw:         string(raw),
		PostCount:   f.PostCount(),
		ContentType: f.ContentType(),
	}
	if f.Format() == feed.FormatJSON {
		resp.JSON = json.RawMessage(raw)
	}
	if unified, err := unifiedPreview(raw); err == nil {
		resp.Unified = unified
	}
	respondJSON(w, resp)
}

// unifiedPreview re-reads the serialized output through a general feed
// parser, giving the UI one format-independent view of what a reader sees.
func unifiedPreview(raw []byte) (*previewUnified, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	u := &previewUnified{
		Title:       parsed.Title,
		Link:        parsed.Link,
		Description: parsed.Description,
		Posts:       make([]previewPost, 0, len(parsed.Items)),
	}
	for _, it := range parsed.Items {
		post := previewPost{
			Title: it.Title,
			Link:  it.Link,
			GUID:  it.GUID,
			Body:  it.Content,
		}
		if post.Body == "" {
			post.Body = it.Description
		}
		if len(it.Authors) > 0 && it.Authors[0] != nil {
			post.Author = it.Authors[0].Name
		}
		if it.PublishedParsed != nil {
			post.Date = it.PublishedParsed.Format(time.RFC3339)
		}
		u.Posts = append(u.Posts, post)
	}
	return u, nil
}
