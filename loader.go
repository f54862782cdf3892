package jsandy

import "fmt"

// ModuleFactory resolves a lazily-loaded router module, mirroring a dynamic
// `import()` whose resolved module object must expose exactly one export.
// Go has no runtime dynamic import, so the factory stands in for whatever
// produced the module (a plugin, a registry lookup, a build-time generated
// map) -- Load's validation is what spec.md actually describes.
type ModuleFactory func() (map[string]any, error)

// Load invokes factory and validates its result: exactly one export, and
// that export must be a *Router. By design Load never caches -- every call
// re-invokes factory, so a factory backed by a registry picks up changes
// without a restart.
func Load(factory ModuleFactory) (*Router, error) {
	exports, err := factory()
	if err != nil {
		return nil, err
	}

	switch len(exports) {
	case 0:
		return nil, NewError(KindEmptyModule, "module exported nothing")
	case 1:
		// fall through
	default:
		return nil, NewError(KindAmbiguousModule, fmt.Sprintf("module exported %d values, expected exactly one", len(exports)))
	}

	for _, v := range exports {
		router, ok := v.(*Router)
		if !ok {
			return nil, NewError(KindNotARouter, fmt.Sprintf("module's single export is %T, not *Router", v))
		}
		return router, nil
	}

	panic("unreachable: exactly one export was checked above")
}

// LoadAll resolves every named factory and composes the results into one
// Router, keyed by map key as the mount prefix -- the multi-module
// counterpart to Load, for assembling several lazily-loaded routers at
// once.
func LoadAll(factories map[string]ModuleFactory) (*Router, error) {
	modules := make(map[string]*Router, len(factories))
	for name, factory := range factories {
		router, err := Load(factory)
		if err != nil {
			return nil, fmt.Errorf("loading module %q: %w", name, err)
		}
		modules[name] = router
	}
	return Compose(modules)
}
