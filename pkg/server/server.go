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

// Package server is the HTTP face of the funnel. It owns the compiled
// config snapshot, serves each configured endpoint as a filtered feed and
// exposes the inspector API, login and metrics around it.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rssfunnel/funnel/pkg/config"
	"github.com/rssfunnel/funnel/pkg/fetch"
)

const banner = "rss-funnel is up and running!"

// Options configure the app.
type Options struct {
	Bind       string
	ConfigPath string
	Watch      bool
}

// App is the running service. Requests read one immutable snapshot for
// their whole lifetime; reloads swap the snapshot pointer atomically.
type App struct {
	opts     Options
	cache    *fetch.Cache
	sessions *sessions
	snap     atomic.Pointer[snapshot]
}

// snapshot is a compiled config: one built endpoint per path. err is set
// when the last (re)load failed; the endpoints then are the previous good
// ones, or none at all when no load ever succeeded.
type snapshot struct {
	root      *config.Root
	endpoints map[string]*endpoint
	err       error
}

// NewApp loads the config and compiles every endpoint. When watching, a
// broken config does not stop startup: the app comes up answering 503 and
// recovers on the next good reload. Without watching the error is returned.
func NewApp(opts Options) (*App, error) {
	app := &App{opts: opts, sessions: newSessions()}

	root, err := config.Load(opts.ConfigPath)
	if err == nil {
		app.cache = fetch.NewCache(root.Cache.FetchConfig())
		var snap *snapshot
		snap, err = app.build(root)
		if err == nil {
			app.snap.Store(snap)
			return app, nil
		}
	}

	var cfgErr *config.Error
	if !opts.Watch || !errors.As(err, &cfgErr) {
		return nil, err
	}

	log.Printf("WARN starting with broken config: %v", err)
	if app.cache == nil {
		app.cache = fetch.NewCache(fetch.CacheConfig{})
	}
	app.snap.Store(&snapshot{err: err})
	return app, nil
}

// build compiles a snapshot. The cache keeps the bounds it was created
// with; reloads only swap endpoints.
func (app *App) build(root *config.Root) (*snapshot, error) {
	endpoints := make(map[string]*endpoint, len(root.Endpoints))
	for _, conf := range root.Endpoints {
		ep, err := newEndpoint(conf, root.Client, app.cache)
		if err != nil {
			return nil, config.WrapError(errors.Wrapf(err, "endpoint %s", conf.Path))
		}
		endpoints[conf.Path] = ep
		log.Printf("loaded endpoint: %s", conf.Path)
	}
	return &snapshot{root: root, endpoints: endpoints}, nil
}

// Reload re-reads the config file and swaps the snapshot. On failure the
// previous endpoints keep serving and the error is recorded for the
// inspector; paths missing from the old snapshot answer 503 until a reload
// succeeds.
func (app *App) Reload() error {
	root, err := config.Load(app.opts.ConfigPath)
	var snap *snapshot
	if err == nil {
		snap, err = app.build(root)
	}
	if err != nil {
		bad := &snapshot{err: err}
		if prev := app.snap.Load(); prev != nil {
			bad.root = prev.root
			bad.endpoints = prev.endpoints
		}
		app.snap.Store(bad)
		return err
	}
	app.snap.Store(snap)
	return nil
}

func (app *App) snapshot() *snapshot { return app.snap.Load() }

// Handler assembles the route table. Endpoint paths are dispatched by the
// root fallback so that reloads can add and remove them freely.
func (app *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health-check", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/login", app.serveLogin)
	mux.HandleFunc("/logout", app.serveLogout)
	mux.HandleFunc("/_inspector/config", app.serveInspectorConfig)
	mux.HandleFunc("/_inspector/filter_schema", app.serveFilterSchema)
	mux.HandleFunc("/_inspector/preview", app.servePreview)
	mux.HandleFunc("/", app.serveEndpoint)
	return app.withMetrics(app.withAuth(mux))
}

// Run starts the listener and, when configured, the config watcher. It
// blocks until ctx is cancelled or the listener fails.
func (app *App) Run(ctx context.Context) error {
	if app.opts.Watch {
		go app.watchConfig(ctx)
	}

	srv := &http.Server{Addr: app.opts.Bind, Handler: app.Handler()}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Printf("listening on %s", app.opts.Bind)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

func (app *App) watchConfig(ctx context.Context) {
	err := config.Watch(ctx, app.opts.ConfigPath, func() {
		log.Printf("config updated, reloading")
		if err := app.Reload(); err != nil {
			log.Printf("WARN reload failed: %v", err)
		}
	})
	if err != nil {
		log.Printf("WARN config watch: %v", err)
	}
}

func respondJSON(w http.ResponseWriter, value interface{}) {
	jw := json.NewEncoder(w)
	jw.SetIndent("", "    ")
	jw.SetEscapeHTML(false)
	w.Header().Add("Content-Type", "application/json; charset=utf-8")
	if err := jw.Encode(value); err != nil {
		http.Error(w, err.Error(), 500)
	}
}
