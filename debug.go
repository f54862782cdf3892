package jsandy

import (
	"net/http/httputil"
	"sync"
)

// DebugToggle gates request dumping behind a runtime flag and a
// shared key, generalized from ags's debug.go (DebugConfig + debugResponseWriter)
// to jsandy's MiddlewareFunc shape.
type DebugToggle struct {
	mu      sync.RWMutex
	enabled bool
	authKey string
}

// NewDebugToggle creates a toggle requiring authKey on /._/debug/toggle-style
// admin calls. An empty authKey disables the toggle entirely (Enable/Disable
// are no-ops, dumping stays off).
func NewDebugToggle(authKey string) *DebugToggle {
	return &DebugToggle{authKey: authKey}
}

// Enable turns request dumping on, provided key matches the configured
// authKey.
func (d *DebugToggle) Enable(key string) bool {
	return d.setEnabled(key, true)
}

// Disable turns request dumping off, provided key matches the configured
// authKey.
func (d *DebugToggle) Disable(key string) bool {
	return d.setEnabled(key, false)
}

func (d *DebugToggle) setEnabled(key string, enabled bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.authKey == "" || key != d.authKey {
		return false
	}
	d.enabled = enabled
	return true
}

func (d *DebugToggle) isEnabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// Middleware returns a MiddlewareFunc that, while the toggle is enabled,
// dumps each request (headers and body) to the request's Logger at debug
// level before continuing the chain.
func (d *DebugToggle) Middleware() MiddlewareFunc {
	return func(c *Context, next Next) (any, error) {
		if d.isEnabled() {
			dump, err := httputil.DumpRequest(c.Request, true)
			if err != nil {
				c.Log.Error("failed to dump request", "error", err)
			} else {
				c.Log.Debug("request dump", "dump", string(dump))
			}
		}
		return next(c)
	}
}
