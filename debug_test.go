package jsandy

import (
	"net/http/httptest"
	"testing"

	"gotest.tools/v3/assert"
)

func TestDebugToggle_EnableRequiresCorrectKey(t *testing.T) {
	toggle := NewDebugToggle("secret")
	assert.Check(t, !toggle.Enable("wrong"))
	assert.Check(t, !toggle.isEnabled())

	assert.Check(t, toggle.Enable("secret"))
	assert.Check(t, toggle.isEnabled())

	assert.Check(t, toggle.Disable("secret"))
	assert.Check(t, !toggle.isEnabled())
}

func TestDebugToggle_MiddlewareRunsNextWhileEnabled(t *testing.T) {
	toggle := NewDebugToggle("secret")
	toggle.Enable("secret")

	req := httptest.NewRequest("GET", "/", nil)
	c := newContext(httptest.NewRecorder(), req, NewDefaultLogger(ErrorLevel))

	called := false
	_, err := toggle.Middleware()(c, func(c *Context) (any, error) {
		called = true
		return "ok", nil
	})

	assert.NilError(t, err)
	assert.Check(t, called)
}
