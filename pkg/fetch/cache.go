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

package fetch

import (
	"container/list"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/blake2s"
)

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "funnel_cache_hits_total",
		Help: "Number of HTTP fetches served from the response cache.",
	})
	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "funnel_cache_misses_total",
		Help: "Number of HTTP fetches that went upstream.",
	})
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMisses)
}

// CacheConfig bounds the response cache.
type CacheConfig struct {
	MaxEntries    int
	MaxBytes      int64
	MaxEntryBytes int64
	TTL           time.Duration
}

// withDefaults fills in the documented defaults for unset fields.
func (c CacheConfig) withDefaults() CacheConfig {
	if c.MaxEntries <= 0 {
		c.MaxEntries = 1024
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 64 << 20
	}
	if c.MaxEntryBytes <= 0 {
		c.MaxEntryBytes = 4 << 20
	}
	if c.TTL <= 0 {
		c.TTL = 12 * time.Hour
	}
	return c
}

type cacheEntry struct {
	key      string
	resp     *Response
	inserted time.Time
	size     int64
}

// Cache is an in-memory LRU over fetched responses, bounded by entry count
// and aggregate body size, with a TTL per entry. It is shared process-wide
// and safe for concurrent use.
type Cache struct {
	cfg CacheConfig
	now func() time.Time

	mu    sync.Mutex
	ll    *list.List
	index map[string]*list.Element
	bytes int64
}

// NewCache creates a cache with the given bounds; zero values select the
// defaults (1024 entries, 64 MiB, 4 MiB per entry, 12h TTL).
func NewCache(cfg CacheConfig) *Cache {
	return &Cache{
		cfg:   cfg.withDefaults(),
		now:   time.Now,
		ll:    list.New(),
		index: make(map[string]*list.Element),
	}
}

// Key builds the content address of a request: a BLAKE2s-256 digest over
// method, URL and the sorted keyed headers. Cookies and authorization are
// never part of the key.
func Key(method, url string, header http.Header) string {
	h, _ := blake2s.New256(nil)
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(url))

	keyed := make([]string, 0, len(header))
	for name, vals := range header {
		switch http.CanonicalHeaderKey(name) {
		case "Cookie", "Authorization", "Set-Cookie":
			continue
		}
		keyed = append(keyed, http.CanonicalHeaderKey(name)+":"+strings.Join(vals, ","))
	}
	sort.Strings(keyed)
	for _, kv := range keyed {
		h.Write([]byte{0})
		h.Write([]byte(kv))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached response for key, if present and fresh.
func (c *Cache) Get(key string) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[key]
	if !ok {
		cacheMisses.Inc()
		return nil, false
	}
	ent := elem.Value.(*cacheEntry)
	if c.now().Sub(ent.inserted) > c.cfg.TTL {
		c.removeLocked(elem)
		cacheMisses.Inc()
		return nil, false
	}
	c.ll.MoveToFront(elem)
	cacheHits.Inc()
	return ent.resp, true
}

// Put stores a response. Responses with a non-200 status or a body over the
// per-entry limit are not cached.
func (c *Cache) Put(key string, resp *Response) {
	if resp.Status != http.StatusOK || resp.size() > c.cfg.MaxEntryBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[key]; ok {
		c.removeLocked(elem)
	}
	ent := &cacheEntry{key: key, resp: resp, inserted: c.now(), size: resp.size()}
	c.index[key] = c.ll.PushFront(ent)
	c.bytes += ent.size

	for c.ll.Len() > c.cfg.MaxEntries || c.bytes > c.cfg.MaxBytes {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache) removeLocked(elem *list.Element) {
	ent := elem.Value.(*cacheEntry)
	c.ll.Remove(elem)
	delete(c.index, ent.key)
	c.bytes -= ent.size
}
