package filter

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rssfunnel/funnel/pkg/feed"
)

// buildFilter builds a filter from a YAML snippet like `keep_element: .x`.
func buildFilter(t *testing.T, doc string) Filter {
	t.Helper()
	var spec Spec
	require.NoError(t, yaml.Unmarshal([]byte(doc), &spec))
	flt, err := Build(spec, BuildOptions{})
	require.NoError(t, err)
	return flt
}

// scratchFeed builds an rss feed with one post per title. Post i has link
// http://host/i, guid post-i, body <p>title</p> and a date an hour older
// than its predecessor.
func scratchFeed(t *testing.T, titles ...string) *feed.Feed {
	t.Helper()
	f, err := feed.NewScratch(feed.FormatRSS, "test feed", "http://host/", "")
	require.NoError(t, err)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	posts := make([]feed.Post, 0, len(titles))
	for i, title := range titles {
		p := f.NewPost()
		p.SetTitle(title)
		p.SetLink(fmt.Sprintf("http://host/%d", i+1))
		p.SetGUID(fmt.Sprintf("post-%d", i+1))
		p.SetBody("<p>" + title + "</p>")
		p.SetDate(base.Add(-time.Duration(i) * time.Hour))
		posts = append(posts, p)
	}
	f.SetPosts(posts)
	return f
}

func postTitles(f *feed.Feed) []string {
	posts := f.Posts()
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.Title())
	}
	return out
}

func TestSpecUnmarshal(t *testing.T) {
	doc := `
- keep_element: .content
- sanitize:
    - remove: foo
- simplify_html: {}
`
	var specs []Spec
	require.NoError(t, yaml.Unmarshal([]byte(doc), &specs))
	require.Len(t, specs, 3)
	assert.Equal(t, "keep_element", specs[0].Name)
	assert.Equal(t, "sanitize", specs[1].Name)
	assert.Equal(t, "simplify_html", specs[2].Name)
}

func TestSpecUnmarshalRejectsBadShapes(t *testing.T) {
	for _, doc := range []string{
		`[{a: 1, b: 2}]`,
		`[just_a_name]`,
		`[[nested]]`,
	} {
		var specs []Spec
		assert.Error(t, yaml.Unmarshal([]byte(doc), &specs), "doc %s", doc)
	}
}

func TestSpecMarshalRoundTrip(t *testing.T) {
	var spec Spec
	require.NoError(t, yaml.Unmarshal([]byte(`keep_element: .content`), &spec))

	out, err := yaml.Marshal(spec)
	require.NoError(t, err)

	var again Spec
	require.NoError(t, yaml.Unmarshal(out, &again))
	assert.Equal(t, "keep_element", again.Name)
}

func TestBuildUnknownFilter(t *testing.T) {
	_, err := Build(Spec{Name: "frobnicate"}, BuildOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown filter")
}

func TestBuildBadOptions(t *testing.T) {
	var spec Spec
	require.NoError(t, yaml.Unmarshal([]byte(`keep_element: "??"`), &spec))
	_, err := Build(spec, BuildOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `filter "keep_element"`)
}

func TestNames(t *testing.T) {
	names := Names()
	assert.True(t, sortedStrings(names))
	for _, want := range []string{
		"full_text", "simplify_html", "keep_element", "remove_element",
		"split", "sanitize", "keep_only", "discard", "highlight", "merge",
		"convert_to", "note", "limit", "modify_post", "modify_feed", "js",
	} {
		assert.True(t, Known(want), "missing %s", want)
	}
	assert.False(t, Known("nope"))
}

func sortedStrings(ss []string) bool {
	for i := 1; i < len(ss); i++ {
		if ss[i-1] > ss[i] {
			return false
		}
	}
	return true
}

func TestSchemaFor(t *testing.T) {
	for _, name := range Names() {
		schema, err := SchemaFor(name)
		require.NoError(t, err, name)
		assert.NotNil(t, schema, name)
	}
	_, err := SchemaFor("nope")
	assert.Error(t, err)
}

func TestMapPostsKeepsOrder(t *testing.T) {
	f := scratchFeed(t, "a", "b", "c", "d", "e", "f", "g", "h")
	err := MapPosts(context.Background(), f, 4, func(_ context.Context, p feed.Post) (bool, error) {
		time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
		p.SetTitle(p.Title() + "!")
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a!", "b!", "c!", "d!", "e!", "f!", "g!", "h!"}, postTitles(f))
}

func TestMapPostsDeletes(t *testing.T) {
	f := scratchFeed(t, "keep", "drop", "keep2", "drop2")
	err := MapPosts(context.Background(), f, 0, func(_ context.Context, p feed.Post) (bool, error) {
		return p.Title() == "keep" || p.Title() == "keep2", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"keep", "keep2"}, postTitles(f))
}

func TestMapPostsAbsorbsErrors(t *testing.T) {
	f := scratchFeed(t, "ok", "boom")
	err := MapPosts(context.Background(), f, 0, func(_ context.Context, p feed.Post) (bool, error) {
		if p.Title() == "boom" {
			return false, fmt.Errorf("no")
		}
		p.SetTitle("OK")
		return true, nil
	})
	require.NoError(t, err)
	// The failing post stays, unchanged and undeleted.
	assert.Equal(t, []string{"OK", "boom"}, postTitles(f))
}

func TestMapPostsBoundsParallelism(t *testing.T) {
	f := scratchFeed(t, "1", "2", "3", "4", "5", "6", "7", "8", "9", "10")
	var inFlight, peak int32
	err := MapPosts(context.Background(), f, 3, func(context.Context, feed.Post) (bool, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return true, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestMapPostsCancelled(t *testing.T) {
	f := scratchFeed(t, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := MapPosts(ctx, f, 0, func(context.Context, feed.Post) (bool, error) {
		return true, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	// Nothing was dropped on the way out.
	assert.Equal(t, 2, f.PostCount())
}

func TestOneOrMany(t *testing.T) {
	var one OneOrMany
	require.NoError(t, yaml.Unmarshal([]byte(`single`), &one))
	assert.Equal(t, OneOrMany{"single"}, one)

	var many OneOrMany
	require.NoError(t, yaml.Unmarshal([]byte("[a, b]"), &many))
	assert.Equal(t, OneOrMany{"a", "b"}, many)
}

func TestConvertToFilter(t *testing.T) {
	flt := buildFilter(t, `convert_to: atom`)
	f := scratchFeed(t, "one")
	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, feed.FormatAtom, f.Format())
	assert.Equal(t, feed.FormatAtom, f.Variant())
	assert.Equal(t, "one", f.Posts()[0].Title())
}

func TestConvertToUnknownFormat(t *testing.T) {
	var spec Spec
	require.NoError(t, yaml.Unmarshal([]byte(`convert_to: cbor`), &spec))
	_, err := Build(spec, BuildOptions{})
	assert.Error(t, err)
}

func TestNoteFilter(t *testing.T) {
	flt := buildFilter(t, `note: pipeline under construction`)
	f := scratchFeed(t, "one")
	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, []string{"one"}, postTitles(f))
}
