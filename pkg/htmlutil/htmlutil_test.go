package htmlutil

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func TestFragmentRoundTripNoWrapping(t *testing.T) {
	in := `<p>one</p><p>two <b>bold</b></p>`
	nodes, err := ParseFragment(in)
	require.NoError(t, err)
	out := RenderNodes(nodes)
	assert.Equal(t, in, out)
	assert.False(t, strings.Contains(out, "<html>"))
}

func TestSelectAll(t *testing.T) {
	nodes, err := ParseFragment(`<div><p class="x">a</p><p>b</p><span class="x">c</span></div>`)
	require.NoError(t, err)
	sel, err := Compile(".x")
	require.NoError(t, err)

	found := SelectAll(nodes, sel)
	require.Len(t, found, 2)
	assert.Equal(t, "p", found[0].Data)
	assert.Equal(t, "span", found[1].Data)
}

func TestSelectAllMatchesRoot(t *testing.T) {
	nodes, err := ParseFragment(`<p class="x">a</p>`)
	require.NoError(t, err)
	sel, _ := Compile("p.x")
	assert.Len(t, SelectAll(nodes, sel), 1)
}

func TestSetInnerHTML(t *testing.T) {
	nodes, err := ParseFragment(`<div><p>old</p></div>`)
	require.NoError(t, err)
	require.NoError(t, SetInnerHTML(nodes[0], `<span>new</span>`))
	assert.Equal(t, `<div><span>new</span></div>`, Render(nodes[0]))
}

func TestTextAndAttrs(t *testing.T) {
	nodes, err := ParseFragment(`<p id="p1">hello <b>world</b></p>`)
	require.NoError(t, err)
	n := nodes[0]

	assert.Equal(t, "hello world", Text(n))

	v, ok := Attr(n, "id")
	assert.True(t, ok)
	assert.Equal(t, "p1", v)

	SetAttr(n, "id", "p2")
	v, _ = Attr(n, "id")
	assert.Equal(t, "p2", v)

	SetAttr(n, "lang", "en")
	_, ok = Attr(n, "lang")
	assert.True(t, ok)

	RemoveAttr(n, "id")
	_, ok = Attr(n, "id")
	assert.False(t, ok)
}

func TestResolveRelativeURLs(t *testing.T) {
	nodes, err := ParseFragment(
		`<p><a href="/a">a</a><img src="img/x.png" srcset="img/x.png 1x, /img/y.png 2x"><a href="http://other.com/z">abs</a></p>`)
	require.NoError(t, err)
	base, _ := url.Parse("http://example.com/posts/1")

	ResolveRelativeURLs(nodes[0], base)
	out := Render(nodes[0])

	assert.Contains(t, out, `href="http://example.com/a"`)
	assert.Contains(t, out, `src="http://example.com/posts/img/x.png"`)
	assert.Contains(t, out, `http://example.com/img/y.png 2x`)
	assert.Contains(t, out, `href="http://other.com/z"`)
}

func TestBodyInnerHTMLAndTitle(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(
		`<!doctype html><html><head><title> Page Title </title></head><body><p>x</p></body></html>`))
	require.NoError(t, err)

	assert.Equal(t, "Page Title", DocumentTitle(doc))
	assert.Equal(t, "<p>x</p>", BodyInnerHTML(doc))
	assert.NotNil(t, FindElement(doc, atom.Body))
}
