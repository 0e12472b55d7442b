package filter

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/rssfunnel/funnel/pkg/feed"
	"github.com/rssfunnel/funnel/pkg/fetch"
	"github.com/rssfunnel/funnel/pkg/util"
)

// LimitConfig caps the feed. The scalar form is a post count; the mapping
// form can also set a duration, keeping only posts younger than it.
type LimitConfig struct {
	Count    int            `yaml:"count,omitempty" json:"count,omitempty"`
	Duration fetch.Duration `yaml:"duration,omitempty" json:"duration,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *LimitConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&c.Count)
	}
	type plain LimitConfig
	return node.Decode((*plain)(c))
}

type limit struct {
	count    int
	duration time.Duration
}

func newLimit(conf LimitConfig, _ BuildOptions) (Filter, error) {
	if conf.Count < 0 {
		return nil, errors.New("limit count must not be negative")
	}
	if conf.Count == 0 && conf.Duration <= 0 {
		return nil, errors.New("limit needs a count or a duration")
	}
	return &limit{count: conf.Count, duration: time.Duration(conf.Duration)}, nil
}

// Run drops posts older than the duration, then truncates to the count.
// Undated posts count as old.
func (l *limit) Run(_ context.Context, f *feed.Feed) error {
	if l.duration > 0 {
		cutoff := time.Now().Add(-l.duration)
		posts := f.Posts()
		young := util.StablePartition(posts, 0, len(posts), func(p feed.Post) bool {
			t, ok := p.Date()
			return ok && !t.Before(cutoff)
		})
		if young != len(posts) {
			f.SetPosts(posts[:young])
		}
	}
	if l.count > 0 {
		f.Truncate(l.count)
	}
	return nil
}
