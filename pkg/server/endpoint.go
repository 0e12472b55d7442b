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
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/rssfunnel/funnel/pkg/config"
	"github.com/rssfunnel/funnel/pkg/feed"
	"github.com/rssfunnel/funnel/pkg/fetch"
	"github.com/rssfunnel/funnel/pkg/filter"
	"github.com/rssfunnel/funnel/pkg/pipeline"
	"github.com/rssfunnel/funnel/pkg/source"
)

// endpoint is one compiled config entry: its outbound client and its
// filter pipeline, both fixed for the snapshot's lifetime.
type endpoint struct {
	conf   config.Endpoint
	client *fetch.Client
	pipe   *pipeline.Pipeline
}

func newEndpoint(conf config.Endpoint, global fetch.Options, cache *fetch.Cache) (*endpoint, error) {
	opts := global.Merge(conf.Client)
	client, err := fetch.NewClient(opts, cache)
	if err != nil {
		return nil, err
	}
	pipe, err := pipeline.New(conf.Filters, filter.BuildOptions{Cache: cache, ClientOptions: opts})
	if err != nil {
		return nil, err
	}
	return &endpoint{conf: conf, client: client, pipe: pipe}, nil
}

// endpointParams are the request knobs every endpoint accepts.
type endpointParams struct {
	source string
	limits pipeline.Limits
	pretty bool
	format feed.Format
}

func parseParams(r *http.Request) (endpointParams, error) {
	q := r.URL.Query()
	p := endpointParams{
		source: q.Get("source"),
		limits: pipeline.NoLimits,
	}
	if v := q.Get("pp"); v == "1" || v == "true" {
		p.pretty = true
	}
	if v := q.Get("limit_posts"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, errors.Errorf("invalid limit_posts %q", v)
		}
		p.limits.Posts = n
	}
	if v := q.Get("limit_filters"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, errors.Errorf("invalid limit_filters %q", v)
		}
		p.limits.Filters = n
	}
	if v := q.Get("format"); v != "" {
		format, err := feed.ParseFormat(v)
		if err != nil {
			return p, err
		}
		p.format = format
	}
	return p, nil
}

// requestError carries the HTTP status a failed produce step maps to.
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

func (app *App) serveEndpoint(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		fmt.Fprint(w, banner)
		return
	}

	snap := app.snapshot()
	ep, ok := snap.endpoints[r.URL.Path]
	if !ok {
		if snap.err != nil {
			http.Error(w, fmt.Sprintf("configuration error: %v", snap.err), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "endpoint not defined: "+r.URL.Path, http.StatusNotFound)
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

	if err := convertForResponse(f, params.format, r.Header.Get("Accept")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body, err := f.Marshal(params.pretty)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Write(body)
}

// produce resolves the endpoint's source and runs its pipeline for one
// request. The returned error carries the response status.
func (app *App) produce(r *http.Request, snap *snapshot, ep *endpoint, params endpointParams) (*feed.Feed, error) {
	var spec source.Spec
	if ep.conf.Source != nil {
		spec = *ep.conf.Source
	}
	if spec.IsZero() && params.source != "" {
		spec = source.FromURL(params.source)
	}

	env := source.NewEnv(requestBase(r), app.invoker(snap))
	if err := env.Enter(ep.conf.Path); err != nil {
		return nil, err
	}
	ctx := source.WithEnv(r.Context(), env)

	f, err := source.Resolve(ctx, spec, ep.client)
	if err != nil {
		return nil, &requestError{status: http.StatusBadGateway, err: errors.Wrap(err, "source")}
	}

	if err := ep.pipe.Run(ctx, f, params.limits); err != nil {
		return nil, &requestError{status: http.StatusInternalServerError, err: err}
	}
	return f, nil
}

// invoker runs sibling endpoints for recursive sources. The caller's Env
// rides on ctx, so one visited set spans the whole request; ResolveURL has
// already entered path by the time this runs.
func (app *App) invoker(snap *snapshot) source.InvokeFunc {
	return func(ctx context.Context, path string) (*feed.Feed, error) {
		ep, ok := snap.endpoints[path]
		if !ok {
			return nil, errors.Errorf("endpoint not defined: %s", path)
		}
		var spec source.Spec
		if ep.conf.Source != nil {
			spec = *ep.conf.Source
		}
		f, err := source.Resolve(ctx, spec, ep.client)
		if err != nil {
			return nil, err
		}
		if err := ep.pipe.Run(ctx, f, pipeline.NoLimits); err != nil {
			return nil, err
		}
		return f, nil
	}
}

// convertForResponse applies the output format chain: explicit ?format=,
// else the feed's own format, else Accept negotiation, else RSS.
func convertForResponse(f *feed.Feed, param feed.Format, accept string) error {
	format := param
	if format == "" {
		if f.Format() != "" {
			return nil
		}
		var ok bool
		format, ok = negotiateFormat(accept)
		if !ok {
			format = feed.FormatRSS
		}
	}
	return f.ConvertTo(format)
}

// negotiateFormat picks an output format from an Accept header.
func negotiateFormat(accept string) (feed.Format, bool) {
	for _, part := range strings.Split(accept, ",") {
		mt := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch mt {
		case "application/rss+xml":
			return feed.FormatRSS, true
		case "application/atom+xml":
			return feed.FormatAtom, true
		case "application/feed+json", "application/json":
			return feed.FormatJSON, true
		}
	}
	return "", false
}

// requestBase infers the externally visible base URL, preferring reverse
// proxy headers over the Host header.
func requestBase(r *http.Request) *url.URL {
	if host := r.Header.Get("X-Forwarded-Host"); host != "" {
		proto := r.Header.Get("X-Forwarded-Proto")
		if proto == "" {
			proto = "http"
		}
		return &url.URL{Scheme: proto, Host: host}
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return &url.URL{Scheme: scheme, Host: r.Host}
}

// respondError maps a produce failure onto the response. Cycles win over
// the step's own status, and a gone client gets nothing.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}
	if errors.Is(err, source.ErrCycle) {
		http.Error(w, err.Error(), http.StatusLoopDetected)
		return
	}
	var rerr *requestError
	if errors.As(err, &rerr) {
		http.Error(w, err.Error(), rerr.status)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
