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

// Package fetch is the outbound HTTP layer: a pooled client with
// per-endpoint options and a content-addressed LRU response cache that
// protects upstream servers during full-text expansion.
package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultTimeout applies when options carry no timeout.
const DefaultTimeout = 10 * time.Second

// DefaultUserAgent is sent when options carry no user agent.
const DefaultUserAgent = "rss-funnel/1.1"

// defaultAccept lists the content types a feed fetch is willing to receive.
const defaultAccept = "application/xml, text/xml, application/rss+xml, application/atom+xml, text/html, */*"

// Duration wraps time.Duration with YAML support ("10s", "12h").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// MarshalJSON keeps the inspector's config dump readable.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// Options configures an outbound client. A zero Options is usable and picks
// the defaults.
type Options struct {
	UserAgent          string   `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	Accept             string   `yaml:"accept,omitempty" json:"accept,omitempty"`
	SetCookie          string   `yaml:"set_cookie,omitempty" json:"set_cookie,omitempty"`
	Referer            string   `yaml:"referer,omitempty" json:"referer,omitempty"`
	Timeout            Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Proxy              string   `yaml:"proxy,omitempty" json:"proxy,omitempty"`
	AcceptInvalidCerts bool     `yaml:"accept_invalid_certs,omitempty" json:"accept_invalid_certs,omitempty"`
	AssumeContentType  string   `yaml:"assume_content_type,omitempty" json:"assume_content_type,omitempty"`
}

// Merge overlays o with every field set in over.
func (o Options) Merge(over Options) Options {
	if over.UserAgent != "" {
		o.UserAgent = over.UserAgent
	}
	if over.Accept != "" {
		o.Accept = over.Accept
	}
	if over.SetCookie != "" {
		o.SetCookie = over.SetCookie
	}
	if over.Referer != "" {
		o.Referer = over.Referer
	}
	if over.Timeout != 0 {
		o.Timeout = over.Timeout
	}
	if over.Proxy != "" {
		o.Proxy = over.Proxy
	}
	if over.AcceptInvalidCerts {
		o.AcceptInvalidCerts = true
	}
	if over.AssumeContentType != "" {
		o.AssumeContentType = over.AssumeContentType
	}
	return o
}

// Client issues outbound requests, memoizing GETs through the shared cache
// when one is attached.
type Client struct {
	http  *http.Client
	opts  Options
	cache *Cache
}

// NewClient builds a client from options. cache may be nil.
func NewClient(opts Options, cache *Cache) (*Client, error) {
	timeout := time.Duration(opts.Timeout)
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid proxy %q", opts.Proxy)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	if opts.AcceptInvalidCerts {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{}
		}
		transport.TLSClientConfig.InsecureSkipVerify = true
	}

	return &Client{
		http:  &http.Client{Timeout: timeout, Transport: transport},
		opts:  opts,
		cache: cache,
	}, nil
}

// Fetch implements Fetcher as a cached GET.
func (c *Client) Fetch(ctx context.Context, url string) (*Response, error) {
	return c.Get(ctx, url)
}

// Get issues a GET, consulting the cache first.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	header := c.requestHeader(nil)
	key := Key(http.MethodGet, url, header)
	if c.cache != nil {
		if resp, ok := c.cache.Get(key); ok {
			log.Printf("HIT %s", url)
			return resp, nil
		}
		log.Printf("MISS %s", url)
	}

	resp, err := c.do(ctx, http.MethodGet, url, header, nil)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Put(key, resp)
	}
	return resp, nil
}

// Do issues a request without cache involvement unless it is a GET. Used by
// the JS fetch binding.
func (c *Client) Do(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	header = c.requestHeader(header)
	if method == http.MethodGet {
		key := Key(method, url, header)
		if c.cache != nil {
			if resp, ok := c.cache.Get(key); ok {
				log.Printf("HIT %s", url)
				return resp, nil
			}
			log.Printf("MISS %s", url)
		}
		resp, err := c.do(ctx, method, url, header, body)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Put(key, resp)
		}
		return resp, nil
	}
	return c.do(ctx, method, url, header, body)
}

func (c *Client) do(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "build request for %s", url)
	}
	for name, vals := range header {
		req.Header[name] = vals
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", url)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read body of %s", url)
	}

	resp := &Response{
		URL:    url,
		Status: httpResp.StatusCode,
		Header: httpResp.Header.Clone(),
		Body:   data,
	}
	if c.opts.AssumeContentType != "" {
		resp.Header.Set("Content-Type", c.opts.AssumeContentType)
	}
	return resp, nil
}

// requestHeader builds the outbound headers from the options, overlaying
// any extra headers the caller supplies.
func (c *Client) requestHeader(extra http.Header) http.Header {
	h := http.Header{}
	ua := c.opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	h.Set("User-Agent", ua)
	accept := c.opts.Accept
	if accept == "" {
		accept = defaultAccept
	}
	h.Set("Accept", accept)
	if c.opts.Referer != "" {
		h.Set("Referer", c.opts.Referer)
	}
	if c.opts.SetCookie != "" {
		h.Set("Cookie", c.opts.SetCookie)
	}
	for name, vals := range extra {
		h[http.CanonicalHeaderKey(name)] = vals
	}
	return h
}
