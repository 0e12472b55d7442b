package fetch

import "context"

// Fetcher fetches urls.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// FetcherFunc is a function that fetches an url.
type FetcherFunc func(ctx context.Context, url string) (*Response, error)

// Fetch fetches an url and returns a response or error.
func (ff FetcherFunc) Fetch(ctx context.Context, url string) (*Response, error) {
	return ff(ctx, url)
}
