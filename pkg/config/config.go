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

// Package config loads and validates the funnel's YAML document: the
// endpoint definitions plus service-wide auth, cache and client settings.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/rssfunnel/funnel/pkg/fetch"
	"github.com/rssfunnel/funnel/pkg/filter"
	"github.com/rssfunnel/funnel/pkg/source"
)

// Environment variables that override the loaded document.
const (
	EnvAuthUsername = "RSS_FUNNEL_AUTH_USERNAME"
	EnvAuthPassword = "RSS_FUNNEL_AUTH_PASSWORD"
)

// Error marks a problem with the configuration itself, as opposed to I/O
// trouble reading it. The CLI exits differently for the two, and a watching
// server keeps running on a config Error, surfacing it through the
// inspector instead of crashing.
type Error struct {
	Err error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func errorf(format string, args ...interface{}) error {
	return &Error{Err: errors.Errorf(format, args...)}
}

// WrapError marks err as a configuration error. A nil err stays nil.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Err: err}
}

// Auth guards every route except the health check, login and metrics.
type Auth struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Cache bounds the shared HTTP response cache. Zero fields pick the
// defaults (1024 entries, 64 MiB total, 4 MiB per entry, 12h TTL).
type Cache struct {
	MaxEntries    int            `yaml:"max_entries,omitempty" json:"max_entries,omitempty"`
	MaxBytes      int64          `yaml:"max_bytes,omitempty" json:"max_bytes,omitempty"`
	MaxEntryBytes int64          `yaml:"max_entry_bytes,omitempty" json:"max_entry_bytes,omitempty"`
	TTL           fetch.Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`
}

// FetchConfig converts the YAML shape into the cache's own config.
func (c Cache) FetchConfig() fetch.CacheConfig {
	return fetch.CacheConfig{
		MaxEntries:    c.MaxEntries,
		MaxBytes:      c.MaxBytes,
		MaxEntryBytes: c.MaxEntryBytes,
		TTL:           time.Duration(c.TTL),
	}
}

// Endpoint binds an HTTP path to a source and a filter pipeline.
type Endpoint struct {
	Path    string        `yaml:"path" json:"path"`
	Note    string        `yaml:"note,omitempty" json:"note,omitempty"`
	Source  *source.Spec  `yaml:"source,omitempty" json:"source,omitempty"`
	Client  fetch.Options `yaml:"client,omitempty" json:"client,omitempty"`
	Filters []filter.Spec `yaml:"filters" json:"filters"`
}

// Root is the whole config document.
type Root struct {
	Auth      *Auth         `yaml:"auth,omitempty" json:"auth,omitempty"`
	Cache     Cache         `yaml:"cache,omitempty" json:"cache,omitempty"`
	Client    fetch.Options `yaml:"client,omitempty" json:"client,omitempty"`
	Endpoints []Endpoint    `yaml:"endpoints" json:"endpoints"`
}

// Load reads and parses the config file at path. Read failures come back
// as plain errors; anything wrong with the document itself is an *Error.
func Load(path string) (*Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(data)
}

// Parse decodes a config document, applies environment overrides and
// validates the result.
func Parse(data []byte) (*Root, error) {
	var root Root
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &Error{Err: errors.Wrap(err, "parse config")}
	}
	root.applyEnv()
	if err := root.Validate(); err != nil {
		return nil, err
	}
	return &root, nil
}

// applyEnv folds the RSS_FUNNEL_AUTH_* variables into the document. Either
// variable alone is enough to switch auth on.
func (r *Root) applyEnv() {
	user, hasUser := os.LookupEnv(EnvAuthUsername)
	pass, hasPass := os.LookupEnv(EnvAuthPassword)
	if !hasUser && !hasPass {
		return
	}
	if r.Auth == nil {
		r.Auth = &Auth{}
	}
	if hasUser {
		r.Auth.Username = user
	}
	if hasPass {
		r.Auth.Password = pass
	}
}

// Validate checks the document shape: paths are absolute and unique,
// filters exist, auth is complete. Filter options are only decoded when the
// pipelines are built, so a bad option surfaces there, also as an *Error.
func (r *Root) Validate() error {
	if r.Auth != nil && (r.Auth.Username == "" || r.Auth.Password == "") {
		return errorf("auth requires both username and password")
	}
	seen := make(map[string]bool, len(r.Endpoints))
	for i, ep := range r.Endpoints {
		if ep.Path == "" {
			return errorf("endpoint %d: path is required", i+1)
		}
		if ep.Path[0] != '/' {
			return errorf("endpoint %s: path must start with /", ep.Path)
		}
		if seen[ep.Path] {
			return errorf("duplicate endpoint: %s", ep.Path)
		}
		seen[ep.Path] = true
		if ep.Filters == nil {
			return errorf("endpoint %s: filters is required (use [] for none)", ep.Path)
		}
		for _, sp := range ep.Filters {
			if !filter.Known(sp.Name) {
				return errorf("endpoint %s: unknown filter %q", ep.Path, sp.Name)
			}
		}
	}
	return nil
}

// Redacted returns a copy safe to expose through the inspector: the auth
// password is masked.
func (r *Root) Redacted() *Root {
	if r == nil || r.Auth == nil {
		return r
	}
	cp := *r
	auth := *cp.Auth
	auth.Password = "<redacted>"
	cp.Auth = &auth
	return &cp
}
