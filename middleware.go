package jsandy

import (
	"context"
	"net/http"

	"github.com/jsandy/jsandy/pkg/queryfilter"
)

// Context is the single argument every procedure handler and middleware
// receives. It carries the request/response pair, the accumulated
// middleware context (spec.md's "ctx merges across the chain"), and the
// collaborators a handler needs: logging and query filters. The decoded
// input is passed to the handler as a separate argument.
type Context struct {
	context.Context

	Request  *http.Request
	Response http.ResponseWriter
	Log      Logger

	vars map[string]any
}

// newContext builds the base Context for one request.
func newContext(w http.ResponseWriter, r *http.Request, log Logger) *Context {
	return &Context{
		Context:  r.Context(),
		Request:  r,
		Response: w,
		Log:      log.WithContext(r.Context()),
		vars:     make(map[string]any),
	}
}

// clone returns a shallow copy sharing the same vars map, used so that
// WithContext-style derivations don't mutate a sibling's view.
func (c *Context) clone() *Context {
	return &Context{
		Context:  c.Context,
		Request:  c.Request,
		Response: c.Response,
		Log:      c.Log,
		vars:     c.vars,
	}
}

// Set stores a value under key, visible to every middleware/handler further
// down the chain for the remainder of this request -- spec.md's per-request
// context accumulation.
func (c *Context) Set(key string, value any) {
	c.vars[key] = value
}

// Get retrieves a value previously stored with Set.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.vars[key]
	return v, ok
}

// Filters parses the request's query string into structured filters, per
// spec.md's supplemented query-filtering support.
func (c *Context) Filters() ([]queryfilter.Filter, error) {
	return queryfilter.ParseQueryFilters(c.Request)
}

// Next invokes the remainder of a middleware chain.
type Next func(c *Context) (any, error)

// MiddlewareFunc runs before a procedure's handler. It may inspect or
// annotate c, short-circuit by returning a non-nil error (typically an
// *Error raised with NewHttpError), or call next to continue the chain.
type MiddlewareFunc func(c *Context, next Next) (any, error)

// chain composes middlewares with a terminal handler into a single Next,
// preserving the order they were registered (first registered runs first,
// outermost).
func chain(mws []MiddlewareFunc, terminal Next) Next {
	next := terminal
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		curNext := next
		next = func(c *Context) (any, error) {
			return mw(c, curNext)
		}
	}
	return next
}
