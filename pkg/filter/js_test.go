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

func TestModifyPost(t *testing.T) {
	flt := buildFilter(t, `
modify_post: |
  function update_post(f, p) {
    if (p.title == "skip") return null;
    p.title = p.title.toUpperCase();
    return p;
  }
`)
	f := scratchFeed(t, "keep", "skip", "x")

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, []string{"KEEP", "X"}, postTitles(f))
}

func TestModifyPostSeesFeed(t *testing.T) {
	flt := buildFilter(t, `
modify_post: |
  function update_post(feed, p) {
    p.title = feed.title + ": " + p.title;
    return p;
  }
`)
	f := scratchFeed(t, "one")

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, []string{"test feed: one"}, postTitles(f))
}

func TestModifyPostSetsFields(t *testing.T) {
	flt := buildFilter(t, `
modify_post: |
  function update_post(f, p) {
    p.body = "<p>rewritten</p>";
    p.author = "robot";
    p.date = "2024-06-01T00:00:00Z";
    return p;
  }
`)
	f := scratchFeed(t, "one")

	require.NoError(t, flt.Run(context.Background(), f))
	p := f.Posts()[0]
	assert.Equal(t, "<p>rewritten</p>", p.Body())
	assert.Equal(t, "robot", p.Author())
	date, ok := p.Date()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), date.UTC())
}

func TestModifyPostKeepsGUIDUnlessRewritten(t *testing.T) {
	flt := buildFilter(t, `
modify_post: |
  function update_post(f, p) {
    p.body = (p.body || "") + "<p>extra</p>";
    return p;
  }
`)
	f := scratchFeed(t, "one")

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, "post-1", f.Posts()[0].GUID())
}

// A script error leaves the post as it was instead of failing the feed.
func TestModifyPostErrorAbsorbed(t *testing.T) {
	flt := buildFilter(t, `
modify_post: |
  function update_post(f, p) {
    if (p.title == "bad") throw new Error("nope");
    p.title = "ok:" + p.title;
    return p;
  }
`)
	f := scratchFeed(t, "bad", "good")

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, []string{"bad", "ok:good"}, postTitles(f))
}

func TestModifyPostUsesConsoleAndUtil(t *testing.T) {
	flt := buildFilter(t, `
modify_post: |
  function update_post(f, p) {
    console.log("processing", p.title);
    p.title = util.decode_html(p.title);
    return p;
  }
`)
	f := scratchFeed(t, "a &amp; b")

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, []string{"a & b"}, postTitles(f))
}

func TestModifyPostBuildValidation(t *testing.T) {
	for _, doc := range []string{
		`modify_post: ""`,
		`modify_post: "function wrong_name() {}"`,
		`modify_post: "syntax error ("`,
	} {
		var spec Spec
		require.NoError(t, yaml.Unmarshal([]byte(doc), &spec), doc)
		_, err := Build(spec, BuildOptions{})
		assert.Error(t, err, doc)
	}
}

func TestModifyFeed(t *testing.T) {
	flt := buildFilter(t, `
modify_feed: |
  function update_feed(feed) {
    feed.title = "renamed";
    feed.posts = feed.posts.filter(function(p) { return p.title != "drop"; });
    return feed;
  }
`)
	f := scratchFeed(t, "keep", "drop", "also keep")

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, "renamed", f.Title())
	assert.Equal(t, []string{"keep", "also keep"}, postTitles(f))
}

func TestModifyFeedMustReturnFeed(t *testing.T) {
	flt := buildFilter(t, `
modify_feed: |
  function update_feed(feed) { feed.title = "lost"; }
`)
	f := scratchFeed(t, "one")

	err := flt.Run(context.Background(), f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must return the feed")
}

func TestModifyFeedAddsPost(t *testing.T) {
	flt := buildFilter(t, `
modify_feed: |
  function update_feed(feed) {
    feed.posts.push({title: "injected", link: "http://host/new",
                     guid: "injected-1", body: "<p>new</p>"});
    return feed;
  }
`)
	f := scratchFeed(t, "existing")

	require.NoError(t, flt.Run(context.Background(), f))
	require.Equal(t, 2, f.PostCount())
	added := f.Posts()[1]
	assert.Equal(t, "injected", added.Title())
	assert.Equal(t, "injected-1", added.GUID())
	assert.Equal(t, "<p>new</p>", added.Body())
	// The untouched post keeps its identity.
	assert.Equal(t, "post-1", f.Posts()[0].GUID())
}

func TestJSFilterLegacy(t *testing.T) {
	flt := buildFilter(t, `
js: |
  var seen = 0;
  function update_post(f, p) {
    seen++;
    p.title = p.title + " #" + seen;
    return p;
  }
`)
	f := scratchFeed(t, "a", "b", "c")

	require.NoError(t, flt.Run(context.Background(), f))
	// One VM, sequential: the counter advances across posts in order.
	assert.Equal(t, []string{"a #1", "b #2", "c #3"}, postTitles(f))
}

func TestJSFilterDeletesOnNull(t *testing.T) {
	flt := buildFilter(t, `
js: |
  function update_post(f, p) { return p.title == "x" ? null : p; }
`)
	f := scratchFeed(t, "x", "y")

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, []string{"y"}, postTitles(f))
}

func TestJSFilterBadReturnAbsorbed(t *testing.T) {
	flt := buildFilter(t, `
js: |
  function update_post(f, p) { return 42; }
`)
	f := scratchFeed(t, "one")

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, []string{"one"}, postTitles(f))
}

func TestModifyPostCancelled(t *testing.T) {
	flt := buildFilter(t, `
modify_post: |
  function update_post(f, p) { while (true) {} }
`)
	f := scratchFeed(t, "one", "two")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := flt.Run(ctx, f)
	assert.Error(t, err)
}

func TestPostToJSNullsAbsentFields(t *testing.T) {
	f, err := feed.NewScratch(feed.FormatRSS, "t", "", "")
	require.NoError(t, err)
	p := f.NewPost()
	p.SetTitle("only title")

	m := postToJS(p)
	assert.Equal(t, "only title", m["title"])
	assert.Nil(t, m["link"])
	assert.Nil(t, m["author"])
	assert.Nil(t, m["date"])
	assert.Nil(t, m["body"])
}
