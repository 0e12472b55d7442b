package filter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullTextServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>T</title></head>` +
			`<body><article><p>full text here</p><a href="/rel">more</a></article></body></html>`))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"not": "html"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFullTextReplacesBody(t *testing.T) {
	srv := fullTextServer(t)
	flt := buildFilter(t, `full_text: {}`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetLink(srv.URL + "/article")

	require.NoError(t, flt.Run(context.Background(), f))

	p := f.Posts()[0]
	assert.Equal(t, `<article><p>full text here</p><a href="`+srv.URL+`/rel">more</a></article>`, p.Body())
	// Expanded posts get a fresh guid so readers refetch them.
	assert.Equal(t, "post-1-full", p.GUID())
}

func TestFullTextAppendMode(t *testing.T) {
	srv := fullTextServer(t)
	flt := buildFilter(t, `full_text: {append_mode: true, keep_guid: true}`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetLink(srv.URL + "/article")
	f.Posts()[0].SetBody("<p>teaser</p>")

	require.NoError(t, flt.Run(context.Background(), f))

	p := f.Posts()[0]
	assert.True(t, strings.HasPrefix(p.Body(), "<p>teaser</p>"+fullTextSeparator), p.Body())
	assert.Contains(t, p.Body(), "full text here")
	assert.Equal(t, "post-1", p.GUID())
}

func TestFullTextKeepElement(t *testing.T) {
	srv := fullTextServer(t)
	flt := buildFilter(t, `full_text: {keep_element: article}`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetLink(srv.URL + "/article")

	require.NoError(t, flt.Run(context.Background(), f))
	assert.True(t, strings.HasPrefix(f.Posts()[0].Body(), "<article>"), f.Posts()[0].Body())
}

func TestFullTextKeepElementMiss(t *testing.T) {
	srv := fullTextServer(t)
	flt := buildFilter(t, `full_text: {keep_element: "#nope"}`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetLink(srv.URL + "/article")

	require.NoError(t, flt.Run(context.Background(), f))
	assert.True(t, strings.HasPrefix(f.Posts()[0].Body(), keepElementFailed), f.Posts()[0].Body())
	assert.Contains(t, f.Posts()[0].Body(), "full text here")
}

func TestFullTextRemoveElement(t *testing.T) {
	srv := fullTextServer(t)
	flt := buildFilter(t, `full_text: {remove_element: a}`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetLink(srv.URL + "/article")

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, `<article><p>full text here</p></article>`, f.Posts()[0].Body())
}

// Non-HTML responses leave the post alone.
func TestFullTextNonHTML(t *testing.T) {
	srv := fullTextServer(t)
	flt := buildFilter(t, `full_text: {}`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetLink(srv.URL + "/plain")

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, "<p>post</p>", f.Posts()[0].Body())
	assert.Equal(t, "post-1", f.Posts()[0].GUID())
}

func TestFullTextUpstreamError(t *testing.T) {
	srv := fullTextServer(t)
	flt := buildFilter(t, `full_text: {}`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetLink(srv.URL + "/missing")

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, "<p>post</p>", f.Posts()[0].Body())
}

func TestFullTextNoLink(t *testing.T) {
	flt := buildFilter(t, `full_text: {}`)
	f := scratchFeed(t, "post")
	f.Posts()[0].SetLink("")

	require.NoError(t, flt.Run(context.Background(), f))
	assert.Equal(t, "<p>post</p>", f.Posts()[0].Body())
}

// The parallelism option caps how many page fetches are in flight at once.
func TestFullTextBoundsParallelism(t *testing.T) {
	var inFlight, peak int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><p>page</p></body></html>`))
	}))
	t.Cleanup(server.Close)

	flt := buildFilter(t, `full_text: {parallelism: 2}`)
	titles := make([]string, 8)
	for i := range titles {
		titles[i] = fmt.Sprintf("p%d", i)
	}
	f := scratchFeed(t, titles...)
	for i, p := range f.Posts() {
		p.SetLink(fmt.Sprintf("%s/page/%d", server.URL, i))
	}

	require.NoError(t, flt.Run(context.Background(), f))
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Equal(t, 8, f.PostCount())
	assert.Equal(t, "<p>page</p>", f.Posts()[0].Body())
}
