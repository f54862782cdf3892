package jsandy

import (
	"net/http/httptest"
	"testing"

	"gotest.tools/v3/assert"
)

func TestContext_SetGetRoundTrips(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	c := newContext(httptest.NewRecorder(), req, NewDefaultLogger(ErrorLevel))

	_, ok := c.Get("missing")
	assert.Check(t, !ok)

	c.Set("key", 42)
	v, ok := c.Get("key")
	assert.Check(t, ok)
	assert.Equal(t, v, 42)
}

func TestChain_RunsMiddlewareInRegistrationOrder(t *testing.T) {
	var order []string

	mw1 := MiddlewareFunc(func(c *Context, next Next) (any, error) {
		order = append(order, "mw1-before")
		out, err := next(c)
		order = append(order, "mw1-after")
		return out, err
	})
	mw2 := MiddlewareFunc(func(c *Context, next Next) (any, error) {
		order = append(order, "mw2-before")
		out, err := next(c)
		order = append(order, "mw2-after")
		return out, err
	})

	terminal := Next(func(c *Context) (any, error) {
		order = append(order, "terminal")
		return nil, nil
	})

	next := chain([]MiddlewareFunc{mw1, mw2}, terminal)
	_, err := next(nil)
	assert.NilError(t, err)

	assert.DeepEqual(t, order, []string{"mw1-before", "mw2-before", "terminal", "mw2-after", "mw1-after"})
}
