package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHighlightKeywords(t *testing.T) {
	flt := buildFilter(t, `highlight: {keywords: go}`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetBody(`<p>go forth and go</p>`)

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, `<p><mark>go</mark> forth and <mark>go</mark></p>`, f.Posts()[0].Body())
}

func TestHighlightPatterns(t *testing.T) {
	flt := buildFilter(t, `highlight: {patterns: ['CVE-\d+-\d+']}`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetBody(`<p>fixes CVE-2024-1234 and more</p>`)

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, `<p>fixes <mark>CVE-2024-1234</mark> and more</p>`, f.Posts()[0].Body())
}

func TestHighlightSkipsScriptAndStyle(t *testing.T) {
	flt := buildFilter(t, `highlight: {keywords: x}`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetBody(`<p>x</p><script>x()</script><style>.x{}</style>`)

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, `<p><mark>x</mark></p><script>x()</script><style>.x{}</style>`, f.Posts()[0].Body())
}

// Running the filter twice must not nest marks.
func TestHighlightIdempotent(t *testing.T) {
	flt := buildFilter(t, `highlight: {keywords: go}`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetBody(`<p>go home</p>`)

	require.NoError(t, flt.Run(context.Background(), f))
	once := f.Posts()[0].Body()
	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, once, f.Posts()[0].Body())
}

func TestHighlightLeavesTitle(t *testing.T) {
	flt := buildFilter(t, `highlight: {keywords: go}`)
	f := scratchFeed(t, "go news")
	f.Posts()[0].SetBody(`<p>nothing to see</p>`)

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, "go news", f.Posts()[0].Title())
	assert.Equal(t, `<p>nothing to see</p>`, f.Posts()[0].Body())
}

func TestHighlightNeedsCriteria(t *testing.T) {
	_, err := newHighlight(HighlightConfig{}, BuildOptions{})
	assert.Error(t, err)
}
