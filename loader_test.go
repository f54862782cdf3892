package jsandy

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestLoad_ReturnsTheSingleRouterExport(t *testing.T) {
	want := NewRouter(RouterConfig{})
	router, err := Load(func() (map[string]any, error) {
		return map[string]any{"router": want}, nil
	})
	assert.NilError(t, err)
	assert.Equal(t, router, want)
}

func TestLoad_RejectsEmptyModule(t *testing.T) {
	_, err := Load(func() (map[string]any, error) {
		return map[string]any{}, nil
	})
	appErr, ok := err.(*Error)
	assert.Check(t, ok)
	assert.Equal(t, appErr.Kind, KindEmptyModule)
}

func TestLoad_RejectsAmbiguousModule(t *testing.T) {
	_, err := Load(func() (map[string]any, error) {
		return map[string]any{"a": NewRouter(RouterConfig{}), "b": NewRouter(RouterConfig{})}, nil
	})
	appErr, ok := err.(*Error)
	assert.Check(t, ok)
	assert.Equal(t, appErr.Kind, KindAmbiguousModule)
}

func TestLoad_RejectsNonRouterExport(t *testing.T) {
	_, err := Load(func() (map[string]any, error) {
		return map[string]any{"thing": "not a router"}, nil
	})
	appErr, ok := err.(*Error)
	assert.Check(t, ok)
	assert.Equal(t, appErr.Kind, KindNotARouter)
}

func TestLoad_NeverCachesFactoryResult(t *testing.T) {
	calls := 0
	factory := func() (map[string]any, error) {
		calls++
		return map[string]any{"router": NewRouter(RouterConfig{})}, nil
	}

	_, err := Load(factory)
	assert.NilError(t, err)
	_, err = Load(factory)
	assert.NilError(t, err)
	assert.Equal(t, calls, 2)
}

func TestLoadAll_ComposesEveryModule(t *testing.T) {
	router, err := LoadAll(map[string]ModuleFactory{
		"users": func() (map[string]any, error) {
			return map[string]any{"router": newGreetRouter()}, nil
		},
	})
	assert.NilError(t, err)
	assert.Equal(t, len(router.Routes()) > 0, true)
}
