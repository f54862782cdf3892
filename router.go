package jsandy

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/jsandy/jsandy/pkg/middleware"
	"github.com/jsandy/jsandy/pubsub"
)

// RouterConfig configures a Router at construction time.
type RouterConfig struct {
	Log     Logger
	Adapter pubsub.Adapter
	CORS    *CORSConfig
}

// RouteMeta describes one registered route, for the supplemented
// metadata-accessor feature (ags's GetRegisteredRoutes/PrintRoutes,
// generalized to jsandy's Route type).
type RouteMeta struct {
	Path        string
	Method      string
	IsWS        bool
	Description string
}

type mountedRouter struct {
	prefix string
	router *Router
}

// Router is jsandy's route table: a flat map of path to Route plus any
// sub-routers mounted at a prefix, dispatched the way ags.Handler dispatches
// protocol handlers before falling through to its route map.
type Router struct {
	log     Logger
	adapter pubsub.Adapter
	cors    *CORSConfig

	routes     map[string]*Route
	routeOrder []string
	mounts     []mountedRouter
	middleware []MiddlewareFunc
}

// NewRouter creates an empty Router. A nil cfg.Log defaults to an
// info-level DefaultLogger, matching ags.NewHandler's default.
func NewRouter(cfg RouterConfig) *Router {
	log := cfg.Log
	if log == nil {
		log = NewDefaultLogger(InfoLevel)
	}
	return &Router{
		log:     log,
		adapter: cfg.Adapter,
		cors:    cfg.CORS,
		routes:  make(map[string]*Route),
	}
}

// Use appends router-level middleware, run before any route-level
// middleware for every request this router (or a router mounting it)
// serves.
func (r *Router) Use(mw MiddlewareFunc) *Router {
	r.middleware = append(r.middleware, mw)
	return r
}

// On registers route at path. Returns r so registrations can chain, the way
// ags.Handler.Get/.Post do.
func (r *Router) On(pathPattern string, route *Route) *Router {
	r.routes[pathPattern] = route
	r.routeOrder = append(r.routeOrder, pathPattern)
	return r
}

// Mount attaches sub as a sub-router under prefix. Per spec.md §4.8, a
// response with status >= 400 from sub is translated back into an
// exception carrying the same status/message so this router's (or an
// ancestor's) error handling observes it uniformly instead of sub's body
// leaking through untranslated. Prefixes containing "/" are rejected: a
// multi-segment mount key makes matching the mount boundary ambiguous
// against sub's own path patterns.
func (r *Router) Mount(prefix string, sub *Router) (*Router, error) {
	if strings.Contains(prefix, "/") {
		return nil, NewHttpError(http.StatusBadRequest, fmt.Sprintf("mount prefix %q must not contain '/'", prefix))
	}
	r.mounts = append(r.mounts, mountedRouter{prefix: "/" + strings.Trim(prefix, "/"), router: sub})
	return r, nil
}

// Compose mounts every entry of modules onto a fresh Router, keyed by map
// key as the mount prefix. It exists for the dynamic-loader path, where a
// set of lazily-resolved routers is assembled in one step.
func Compose(modules map[string]*Router) (*Router, error) {
	root := NewRouter(RouterConfig{})
	keys := make([]string, 0, len(modules))
	for k := range modules {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := root.Mount(key, modules[key]); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// Routes returns metadata for every registered route, including those of
// mounted sub-routers (paths prefixed accordingly), for diagnostics.
func (r *Router) Routes() []RouteMeta {
	out := make([]RouteMeta, 0, len(r.routeOrder))
	for _, p := range r.routeOrder {
		route := r.routes[p]
		out = append(out, RouteMeta{Path: p, Method: route.Method, IsWS: route.isWS, Description: route.Description})
	}
	for _, m := range r.mounts {
		for _, sub := range m.router.Routes() {
			out = append(out, RouteMeta{
				Path:        path.Join(m.prefix, sub.Path),
				Method:      sub.Method,
				IsWS:        sub.IsWS,
				Description: sub.Description,
			})
		}
	}
	return out
}

// ServeHTTP implements http.Handler. Every request is tagged with a request
// ID first, via pkg/middleware.RequestID, so DefaultLogger.log can surface
// it on every log line for the lifetime of the request.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	middleware.RequestID(http.HandlerFunc(r.serveHTTP)).ServeHTTP(w, req)
}

func (r *Router) serveHTTP(w http.ResponseWriter, req *http.Request) {
	if r.adapter != nil {
		req = req.WithContext(WithAdapter(req.Context(), r.adapter))
	}

	if r.cors != nil {
		r.cors.apply(w, req)
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	for _, m := range r.mounts {
		if rest, ok := stripMountPrefix(req.URL.Path, m.prefix); ok {
			r.dispatchMount(w, req, m.router, rest)
			return
		}
	}

	route, ok := r.routes[req.URL.Path]
	if !ok {
		writeError(w, r.log, NewHttpError(http.StatusNotFound, "not found"))
		return
	}

	if route.isWS {
		if !websocket.IsWebSocketUpgrade(req) {
			writeError(w, r.log, NewHttpError(http.StatusUpgradeRequired, "this route requires a WebSocket upgrade"))
			return
		}
		ctx := newContext(w, req, r.log)
		wsNext := func(c *Context) (any, error) { return nil, route.wsInvoke(c) }
		if _, err := chain(r.middleware, wsNext)(ctx); err != nil {
			var appErr *Error
			if errors.As(err, &appErr) && appErr.Kind == KindMissingAdapter {
				// Raised before the upgrade, so the HTTP response is still ours to write.
				writeError(w, r.log, err)
				return
			}
			r.log.Error("websocket route failed", "path", req.URL.Path, "error", err)
		}
		return
	}

	if req.Method != route.Method {
		w.Header().Set("Allow", route.Method)
		writeError(w, r.log, NewHttpError(http.StatusMethodNotAllowed, "method not allowed"))
		return
	}

	ctx := newContext(w, req, r.log)
	output, err := chain(r.middleware, route.invoke)(ctx)
	if err != nil {
		writeError(w, r.log, err)
		return
	}

	writeResult(w, output)
}

func stripMountPrefix(urlPath, prefix string) (string, bool) {
	if urlPath == prefix {
		return "/", true
	}
	if strings.HasPrefix(urlPath, prefix+"/") {
		return strings.TrimPrefix(urlPath, prefix), true
	}
	return "", false
}

// dispatchMount runs sub against a sub-request scoped to rest, capturing
// its response so a >=400 status can be re-raised as an exception in this
// router's frame per spec.md §4.8.
func (r *Router) dispatchMount(w http.ResponseWriter, req *http.Request, sub *Router, rest string) {
	subReq := req.Clone(req.Context())
	subReq.URL.Path = rest

	rec := &responseRecorder{header: make(http.Header), status: http.StatusOK}
	sub.ServeHTTP(rec, subReq)

	if rec.status >= http.StatusBadRequest {
		message := strings.TrimSpace(rec.body.String())
		if message == "" {
			message = http.StatusText(rec.status)
		}
		writeError(w, r.log, NewHttpError(rec.status, message))
		return
	}

	for k, vals := range rec.header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(rec.status)
	_, _ = w.Write(rec.body.Bytes())
}

// responseRecorder is a minimal in-memory http.ResponseWriter, used only to
// observe a mounted sub-router's outcome before deciding whether to forward
// it or translate it into an error.
type responseRecorder struct {
	header http.Header
	status int
	body   bytes.Buffer
	wrote  bool
}

func (rec *responseRecorder) Header() http.Header { return rec.header }

func (rec *responseRecorder) WriteHeader(status int) {
	if !rec.wrote {
		rec.status = status
		rec.wrote = true
	}
}

func (rec *responseRecorder) Write(b []byte) (int, error) {
	if !rec.wrote {
		rec.WriteHeader(http.StatusOK)
	}
	return rec.body.Write(b)
}

// writeResult encodes a successful handler's output as the response body,
// using the whole-body encoding policy from spec.md §4.1: plain JSON unless
// a tagged value forces the enveloped form, signaled by SuperJSONHeader.
func writeResult(w http.ResponseWriter, output any) {
	if output == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	body, tagged, err := EncodeBody(output)
	if err != nil {
		writeError(w, NewDefaultLogger(ErrorLevel), err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if tagged {
		w.Header().Set(SuperJSONHeader, "true")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
