package source

import (
	"context"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/gilliek/go-opml/opml"
	"github.com/pkg/errors"

	"github.com/rssfunnel/funnel/pkg/feed"
	"github.com/rssfunnel/funnel/pkg/fetch"
)

// opmlParallelism bounds the concurrent fetches of an OPML listing.
const opmlParallelism = 20

// Resolve produces the seed feed for spec. Relative and same-host URLs are
// resolved through the Env on ctx as recursive endpoint invocations.
func Resolve(ctx context.Context, spec Spec, client fetch.Fetcher) (*feed.Feed, error) {
	switch {
	case spec.Scratch != nil:
		return feed.NewScratch(spec.Scratch.Format, spec.Scratch.Title, spec.Scratch.Link, spec.Scratch.Description)
	case spec.OPML != "":
		return resolveOPML(ctx, spec.OPML, client)
	case spec.URL != "":
		return ResolveURL(ctx, spec.URL, client)
	}
	return nil, errors.New("no source configured; pass ?source=")
}

// ResolveURL fetches and parses a single source URL, or re-enters the
// service when the URL points at a sibling endpoint.
func ResolveURL(ctx context.Context, raw string, client fetch.Fetcher) (*feed.Feed, error) {
	env := EnvFrom(ctx)
	if path, ok := siblingPath(raw, env); ok {
		if env == nil || env.Invoke == nil {
			return nil, errors.Errorf("cannot resolve %q: no sibling endpoints here", raw)
		}
		if err := env.Enter(path); err != nil {
			return nil, err
		}
		return env.Invoke(ctx, path)
	}
	return fetchFeed(ctx, raw, client)
}

// siblingPath reports whether raw names an endpoint on this service and
// returns its path.
func siblingPath(raw string, env *Env) (string, bool) {
	if strings.HasPrefix(raw, "/") {
		return raw, true
	}
	if env == nil || env.Base == nil {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme == env.Base.Scheme && u.Host == env.Base.Host {
		return u.Path, true
	}
	return "", false
}

func fetchFeed(ctx context.Context, url string, client fetch.Fetcher) (*feed.Feed, error) {
	resp, err := client.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, errors.Errorf("%s returned status %d", url, resp.Status)
	}
	return feed.Parse(resp.Body, resp.ContentType(), url)
}

// resolveOPML fetches an OPML listing, then every feed it references, and
// merges them into one feed titled after the OPML head. Feeds that fail to
// fetch are skipped with a log line; the source fails only when every feed
// failed.
func resolveOPML(ctx context.Context, opmlURL string, client fetch.Fetcher) (*feed.Feed, error) {
	resp, err := client.Fetch(ctx, opmlURL)
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, errors.Errorf("%s returned status %d", opmlURL, resp.Status)
	}
	doc, err := opml.NewOPML(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "parse OPML from %s", opmlURL)
	}

	urls := outlineURLs(doc.Body.Outlines)
	out, err := feed.NewScratch(feed.FormatRSS, doc.Head.Title, opmlURL, "")
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return out, nil
	}

	type result struct {
		feed *feed.Feed
		err  error
	}
	results := make([]result, len(urls))
	sem := make(chan struct{}, opmlParallelism)
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			f, err := ResolveURL(ctx, u, client)
			results[i] = result{feed: f, err: err}
		}(i, u)
	}
	wg.Wait()

	fetched := 0
	for i, res := range results {
		if res.err != nil {
			log.Printf("opml: skipping %s: %v", urls[i], res.err)
			continue
		}
		if err := res.feed.ConvertTo(feed.FormatRSS); err != nil {
			log.Printf("opml: skipping %s: %v", urls[i], err)
			continue
		}
		if err := out.Merge(res.feed); err != nil {
			return nil, err
		}
		fetched++
	}
	if fetched == 0 {
		return nil, errors.Errorf("all %d feeds in %s failed", len(urls), opmlURL)
	}
	out.Reorder()
	return out, nil
}

// outlineURLs collects xmlUrl attributes depth first.
func outlineURLs(outlines []opml.Outline) []string {
	var urls []string
	for _, o := range outlines {
		if o.XMLURL != "" {
			urls = append(urls, o.XMLURL)
		}
		urls = append(urls, outlineURLs(o.Outlines)...)
	}
	return urls
}
