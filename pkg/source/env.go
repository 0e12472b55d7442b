package source

import (
	"context"
	"net/url"
	"sync"

	"github.com/pkg/errors"

	"github.com/rssfunnel/funnel/pkg/feed"
)

// ErrCycle is returned when source resolution re-enters an endpoint that is
// already part of the current request.
var ErrCycle = errors.New("source cycle detected")

// InvokeFunc runs a sibling endpoint on this service and returns its feed.
type InvokeFunc func(ctx context.Context, path string) (*feed.Feed, error)

// Env is the per-request resolution state: the inferred base URL of the
// service, the sibling endpoint invoker and the set of endpoint paths the
// request has entered so far. One Env is shared across a request and all of
// its recursive invocations, which is what makes cycles detectable.
type Env struct {
	Base   *url.URL
	Invoke InvokeFunc

	mu      sync.Mutex
	visited map[string]bool
}

// NewEnv builds an Env. base and invoke may be nil when resolution happens
// outside a server, in which case relative sources fail.
func NewEnv(base *url.URL, invoke InvokeFunc) *Env {
	return &Env{Base: base, Invoke: invoke, visited: map[string]bool{}}
}

// Enter records that the request is now producing the endpoint at path.
// Entering the same path twice in one request is a cycle.
func (e *Env) Enter(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.visited[path] {
		return errors.Wrap(ErrCycle, path)
	}
	e.visited[path] = true
	return nil
}

type envKey struct{}

// WithEnv attaches env to ctx so that nested resolution, including the merge
// filter, sees the same request state.
func WithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// EnvFrom returns the Env attached to ctx, or nil.
func EnvFrom(ctx context.Context) *Env {
	env, _ := ctx.Value(envKey{}).(*Env)
	return env
}
