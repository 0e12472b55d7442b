package filter

import (
	"context"

	"github.com/rssfunnel/funnel/pkg/feed"
)

// ConvertToConfig names the target format: rss, atom or json.
type ConvertToConfig string

type convertTo struct {
	format feed.Format
}

func newConvertTo(conf ConvertToConfig, _ BuildOptions) (Filter, error) {
	format, err := feed.ParseFormat(string(conf))
	if err != nil {
		return nil, err
	}
	return &convertTo{format: format}, nil
}

func (c *convertTo) Run(_ context.Context, f *feed.Feed) error {
	return f.ConvertTo(c.format)
}
