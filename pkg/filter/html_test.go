package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeepElement(t *testing.T) {
	flt := buildFilter(t, `keep_element: .keep`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetBody(`<div><p class="keep">a</p><p>b</p><p class="keep">c</p></div>`)

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, `<p class="keep">a</p><p class="keep">c</p>`, f.Posts()[0].Body())
}

func TestKeepElementNoMatch(t *testing.T) {
	flt := buildFilter(t, `keep_element: article`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetBody(`<p>nothing here</p>`)

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, "<no element kept>", f.Posts()[0].Body())
}

func TestRemoveElement(t *testing.T) {
	flt := buildFilter(t, `remove_element: script`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetBody(`<p>a</p><script>evil()</script><p>b</p>`)

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, `<p>a</p><p>b</p>`, f.Posts()[0].Body())
}

func TestRemoveElementList(t *testing.T) {
	flt := buildFilter(t, `remove_element: [".ad", "iframe"]`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetBody(`<div class="ad">buy</div><p>keep</p><iframe src="http://t/"></iframe>`)

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, `<p>keep</p>`, f.Posts()[0].Body())
}

func TestRemoveElementNeedsSelector(t *testing.T) {
	_, err := newRemoveElement(nil, BuildOptions{})
	assert.Error(t, err)
}

// A split over <li> items without links inherits the post's own link, and
// the children's guids follow the link.
func TestSplitInheritsPostLink(t *testing.T) {
	flt := buildFilter(t, `
split:
  title: li
  link: li
  content: li
`)
	f := scratchFeed(t, "digest")
	f.Posts()[0].SetLink("http://x/")
	f.Posts()[0].SetBody(`<ul><li>A</li><li>B</li></ul>`)

	require.NoError(t, flt.Run(context.Background(), f))

	posts := f.Posts()
	require.Len(t, posts, 2)
	assert.Equal(t, "A", posts[0].Title())
	assert.Equal(t, "A", posts[0].Body())
	assert.Equal(t, "http://x/", posts[0].Link())
	assert.Equal(t, "http://x/", posts[0].GUID())
	assert.Equal(t, "B", posts[1].Title())
	assert.Equal(t, "B", posts[1].Body())
	assert.Equal(t, "http://x/", posts[1].Link())
}

func TestSplitWithAnchors(t *testing.T) {
	flt := buildFilter(t, `
split:
  title: h2
  link: h2 a
  content: div.body
`)
	f := scratchFeed(t, "digest")
	f.Posts()[0].SetLink("http://x/digest")
	f.Posts()[0].SetBody(`<h2><a href="/one">One</a></h2><div class="body"><p>first</p></div>` +
		`<h2><a href="http://y/two">Two</a></h2><div class="body"><p>second</p></div>`)

	require.NoError(t, flt.Run(context.Background(), f))

	posts := f.Posts()
	require.Len(t, posts, 2)
	assert.Equal(t, "One", posts[0].Title())
	assert.Equal(t, "http://x/one", posts[0].Link())
	assert.Equal(t, "<p>first</p>", posts[0].Body())
	assert.Equal(t, "Two", posts[1].Title())
	assert.Equal(t, "http://y/two", posts[1].Link())
}

func TestSplitCountMismatchLeavesPost(t *testing.T) {
	flt := buildFilter(t, `
split:
  title: li
  link: a
`)
	f := scratchFeed(t, "digest")
	body := `<ul><li>A</li><li>B</li></ul><a href="http://x/only">just one</a>`
	f.Posts()[0].SetBody(body)

	require.NoError(t, flt.Run(context.Background(), f))

	posts := f.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, "digest", posts[0].Title())
	assert.Equal(t, body, posts[0].Body())
}

func TestSplitNoBody(t *testing.T) {
	flt := buildFilter(t, `split: {title: li}`)
	f := scratchFeed(t, "digest")
	f.Posts()[0].ClearBodies()

	require.NoError(t, flt.Run(context.Background(), f))

	posts := f.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, "split failed: no body", posts[0].Body())
}

func TestSplitNoMatchesDropsPost(t *testing.T) {
	flt := buildFilter(t, `split: {title: h2}`)
	f := scratchFeed(t, "digest", "other")
	f.Posts()[0].SetBody(`<p>no headings at all</p>`)
	f.Posts()[1].SetBody(`<h2>Still here</h2>`)

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, []string{"Still here"}, postTitles(f))
}

func TestSplitKeepsExtensions(t *testing.T) {
	flt := buildFilter(t, `split: {title: li}`)
	f := scratchFeed(t, "digest")
	p := f.Posts()[0]
	p.SetAuthor("ann")
	p.SetBody(`<ul><li>A</li><li>B</li></ul>`)

	require.NoError(t, flt.Run(context.Background(), f))

	posts := f.Posts()
	require.Len(t, posts, 2)
	// Fields not covered by a selector carry over from the parent.
	assert.Equal(t, "ann", posts[0].Author())
	assert.Equal(t, "ann", posts[1].Author())
	date0, ok := posts[0].Date()
	require.True(t, ok)
	date1, _ := posts[1].Date()
	assert.Equal(t, date0, date1)
}

func TestSplitNeedsTitle(t *testing.T) {
	_, err := newSplit(SplitConfig{}, BuildOptions{})
	assert.Error(t, err)
}
