package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rssfunnel/funnel/pkg/feed"
)

func TestLimitCount(t *testing.T) {
	flt := buildFilter(t, `limit: 2`)
	f := scratchFeed(t, "a", "b", "c", "d")

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, []string{"a", "b"}, postTitles(f))
}

func TestLimitCountLargerThanFeed(t *testing.T) {
	flt := buildFilter(t, `limit: 10`)
	f := scratchFeed(t, "a", "b")

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, 2, f.PostCount())
}

func TestLimitDuration(t *testing.T) {
	flt := buildFilter(t, `limit: {duration: 2h}`)
	f, err := feed.NewScratch(feed.FormatRSS, "t", "", "")
	require.NoError(t, err)

	fresh := f.NewPost()
	fresh.SetTitle("fresh")
	fresh.SetDate(time.Now().Add(-time.Hour))
	stale := f.NewPost()
	stale.SetTitle("stale")
	stale.SetDate(time.Now().Add(-3 * time.Hour))
	undated := f.NewPost()
	undated.SetTitle("undated")
	f.SetPosts([]feed.Post{fresh, stale, undated})

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, []string{"fresh"}, postTitles(f))
}

func TestLimitCountAndDuration(t *testing.T) {
	flt := buildFilter(t, `limit: {count: 1, duration: 48h}`)
	f, err := feed.NewScratch(feed.FormatRSS, "t", "", "")
	require.NoError(t, err)

	a := f.NewPost()
	a.SetTitle("a")
	a.SetDate(time.Now().Add(-time.Hour))
	b := f.NewPost()
	b.SetTitle("b")
	b.SetDate(time.Now().Add(-2 * time.Hour))
	f.SetPosts([]feed.Post{a, b})

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, []string{"a"}, postTitles(f))
}

func TestLimitRejectsBadConfig(t *testing.T) {
	for _, doc := range []string{
		`limit: 0`,
		`limit: -3`,
		`limit: {}`,
		`limit: {duration: "7 fortnights"}`,
	} {
		var spec Spec
		require.NoError(t, yaml.Unmarshal([]byte(doc), &spec), doc)
		_, err := Build(spec, BuildOptions{})
		assert.Error(t, err, doc)
	}
}
