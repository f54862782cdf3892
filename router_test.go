package jsandy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

type greetInput struct {
	Name string `json:"name"`
}

type greetOutput struct {
	Message string `json:"message"`
}

func newGreetRouter() *Router {
	procedure := NewProcedure().Describe("greet")
	route := Get(procedure, func(c *Context, input greetInput) (greetOutput, error) {
		return greetOutput{Message: "hello " + input.Name}, nil
	})

	router := NewRouter(RouterConfig{Log: NewDefaultLogger(ErrorLevel)})
	router.On("/greet", route)
	return router
}

func TestRouter_DispatchesGet(t *testing.T) {
	router := newGreetRouter()

	req := httptest.NewRequest(http.MethodGet, "/greet?name=%7B%22json%22%3A%22ada%22%2C%22meta%22%3A%7B%7D%7D", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Check(t, strings.Contains(rec.Body.String(), "hello ada"))
}

func TestRouter_NotFound(t *testing.T) {
	router := newGreetRouter()
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, rec.Code, http.StatusNotFound)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router := newGreetRouter()
	req := httptest.NewRequest(http.MethodPost, "/greet", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestRouter_MountBubblesSubRouterError(t *testing.T) {
	failProcedure := NewProcedure()
	failRoute := Get(failProcedure, func(c *Context, input greetInput) (greetOutput, error) {
		return greetOutput{}, NewHttpError(http.StatusForbidden, "nope")
	})
	sub := NewRouter(RouterConfig{Log: NewDefaultLogger(ErrorLevel)})
	sub.On("/inner", failRoute)

	root := NewRouter(RouterConfig{Log: NewDefaultLogger(ErrorLevel)})
	_, err := root.Mount("sub", sub)
	assert.NilError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/sub/inner", nil)
	rec := httptest.NewRecorder()
	root.ServeHTTP(rec, req)

	assert.Equal(t, rec.Code, http.StatusForbidden)
	assert.Check(t, strings.Contains(rec.Body.String(), "nope"))
}

func TestRouter_MountRejectsSlashInPrefix(t *testing.T) {
	root := NewRouter(RouterConfig{})
	sub := NewRouter(RouterConfig{})
	_, err := root.Mount("a/b", sub)
	assert.ErrorContains(t, err, "must not contain")
}

func TestRouter_CORSAppliesConfiguredHeaders(t *testing.T) {
	router := newGreetRouter()
	router.cors = DefaultCORSConfig()

	req := httptest.NewRequest(http.MethodOptions, "/greet", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, rec.Code, http.StatusNoContent)
	assert.Equal(t, rec.Header().Get("Access-Control-Allow-Origin"), "https://example.com")
	assert.Equal(t, rec.Header().Get("Access-Control-Allow-Credentials"), "true")
	assert.Equal(t, rec.Header().Get("Access-Control-Expose-Headers"), SuperJSONHeader)
}

func TestCompose_MountsEachModuleUnderItsKey(t *testing.T) {
	a := newGreetRouter()
	composed, err := Compose(map[string]*Router{"a": a})
	assert.NilError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/a/greet?name=%7B%22json%22%3A%22bea%22%2C%22meta%22%3A%7B%7D%7D", nil)
	rec := httptest.NewRecorder()
	composed.ServeHTTP(rec, req)
	assert.Equal(t, rec.Code, http.StatusOK)
}
