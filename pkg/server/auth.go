package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const sessionCookie = "session_id"

// sessions is the in-memory set of live login tokens. Sessions do not
// survive a restart, matching the stateless deployment model.
type sessions struct {
	mu  sync.Mutex
	ids map[string]bool
}

func newSessions() *sessions {
	return &sessions{ids: map[string]bool{}}
}

func (s *sessions) create() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.ids[id] = true
	s.mu.Unlock()
	return id
}

func (s *sessions) valid(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[id]
}

func (s *sessions) drop(id string) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

// authExempt lists the routes that work without a session.
func authExempt(path string) bool {
	switch path {
	case "/health-check", "/login", "/metrics":
		return true
	}
	return false
}

// withAuth guards every non-exempt route when auth is configured. Browsers
// are sent to the login form, feed readers and API clients get a plain 401.
func (app *App) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := app.snapshot()
		if snap.root == nil || snap.root.Auth == nil || authExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if c, err := r.Cookie(sessionCookie); err == nil && app.sessions.valid(c.Value) {
			next.ServeHTTP(w, r)
			return
		}
		if wantsHTML(r) {
			http.Redirect(w, r, "/login?login_required=1", http.StatusFound)
			return
		}
		http.Error(w, "authentication required", http.StatusUnauthorized)
	})
}

// wantsHTML reports whether the client is a browser rather than a feed
// reader or API consumer.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

const loginPage = `<!DOCTYPE html>
<html>
<head><title>rss-funnel login</title></head>
<body>
<form method="post" action="/login">
<input type="text" name="username" placeholder="username">
<input type="password" name="password" placeholder="password">
<button type="submit">Log in</button>
</form>
</body>
</html>
`

func (app *App) serveLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, loginPage)

	case http.MethodPost:
		snap := app.snapshot()
		if snap.root == nil || snap.root.Auth == nil {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		r.ParseForm()
		auth := snap.root.Auth
		if r.PostForm.Get("username") != auth.Username || r.PostForm.Get("password") != auth.Password {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    app.sessions.create(),
			Path:     "/",
			HttpOnly: true,
		})
		http.Redirect(w, r, "/", http.StatusFound)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (app *App) serveLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		app.sessions.drop(c.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/login", http.StatusFound)
}
