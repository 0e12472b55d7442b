package server

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authApp(t *testing.T) (*App, string) {
	t.Helper()
	up := upstream(t, nil, rssDoc("Upstream", "alpha"))
	doc := fmt.Sprintf(`
auth:
  username: admin
  password: hunter2
endpoints:
  - path: /feed.xml
    source: %s
    filters: []
`, up.URL)
	app := newTestApp(t, doc)
	return app, serve(t, app).URL
}

func noRedirect() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestAuthBlocksAPIClients(t *testing.T) {
	_, base := authApp(t)

	resp, _ := get(t, base+"/feed.xml")
	assert.Equal(t, 401, resp.StatusCode)

	resp, body := get(t, base+"/health-check")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ok", body)

	resp, _ = get(t, base+"/metrics")
	assert.Equal(t, 200, resp.StatusCode)
}

func TestAuthRedirectsBrowsers(t *testing.T) {
	_, base := authApp(t)

	req, err := http.NewRequest("GET", base+"/feed.xml", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := noRedirect().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?login_required=1", resp.Header.Get("Location"))
}

func TestLoginFormServed(t *testing.T) {
	_, base := authApp(t)

	resp, body := get(t, base+"/login")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "<form")
}

func TestLoginFlow(t *testing.T) {
	_, base := authApp(t)
	client := noRedirect()

	// Wrong credentials.
	resp, err := client.PostForm(base+"/login", url.Values{
		"username": {"admin"},
		"password": {"nope"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 401, resp.StatusCode)

	// Right credentials issue a session cookie.
	resp, err = client.PostForm(base+"/login", url.Values{
		"username": {"admin"},
		"password": {"hunter2"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "login must set the session cookie")

	// The session opens the endpoint.
	req, err := http.NewRequest("GET", base+"/feed.xml", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	// Logout invalidates it.
	req, err = http.NewRequest("GET", base+"/logout", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	req, err = http.NewRequest("GET", base+"/feed.xml", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 401, resp.StatusCode)
}

func TestNoAuthConfiguredMeansOpen(t *testing.T) {
	up := upstream(t, nil, rssDoc("Upstream", "alpha"))
	app := newTestApp(t, fmt.Sprintf("endpoints:\n  - path: /feed.xml\n    source: %s\n    filters: []\n", up.URL))
	srv := serve(t, app)

	resp, _ := get(t, srv.URL+"/feed.xml")
	assert.Equal(t, 200, resp.StatusCode)
}

func TestSessions(t *testing.T) {
	s := newSessions()
	id := s.create()
	assert.True(t, s.valid(id))
	assert.False(t, s.valid("other"))
	s.drop(id)
	assert.False(t, s.valid(id))
}
