package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Simplifying an already-minimal body keeps the content and never leaks the
// extractor's wrapper markup.
func TestSimplifyMinimalBody(t *testing.T) {
	flt := buildFilter(t, `simplify_html: {}`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetBody(`<p>hi</p>`)

	require.NoError(t, flt.Run(context.Background(), f))

	body := f.Posts()[0].Body()
	assert.Contains(t, body, "hi")
	assert.NotContains(t, body, "readability")
	assert.NotContains(t, body, "<html")
}

func TestSimplifyStripsChrome(t *testing.T) {
	flt := buildFilter(t, `simplify_html: {}`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetBody(`
<div class="nav"><a href="/">home</a><a href="/about">about</a></div>
<article>
  <p>The actual article text goes here and continues for a while, long
  enough for the extractor to recognize it as the main content of the
  page rather than decoration around it.</p>
  <p>A second paragraph keeps the content dense and connected, which is
  what extraction scores reward.</p>
</article>
<div class="footer">copyright nobody</div>`)

	require.NoError(t, flt.Run(context.Background(), f))

	body := f.Posts()[0].Body()
	assert.Contains(t, body, "actual article text")
	assert.Contains(t, body, "second paragraph")
}

func TestSimplifyEmptyBodyUntouched(t *testing.T) {
	flt := buildFilter(t, `simplify_html: {}`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetBody("")

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, "", f.Posts()[0].Body())
}

func TestUnwrapReadability(t *testing.T) {
	out := unwrapReadability(`<div id="readability-page-1" class="page"><p>kept</p></div>`)
	assert.Equal(t, "<p>kept</p>", out)

	// Nested wrappers unwrap all the way down.
	out = unwrapReadability(`<div id="readability-page-1"><div class="page"><p>deep</p></div></div>`)
	assert.Equal(t, "<p>deep</p>", out)

	// Ordinary divs stay.
	out = unwrapReadability(`<div class="content"><p>x</p></div>`)
	assert.Equal(t, `<div class="content"><p>x</p></div>`, out)
}
