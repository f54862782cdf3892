package jsandy

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig is jsandy's default cross-origin policy, applied by Router
// before dispatch. The zero value is not usable; use DefaultCORSConfig or set
// AllowedOrigins directly.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig permits any origin with the common verbs jsandy routes
// use, matching the permissive CheckOrigin default ags ships for local
// development. Credentials are enabled and SuperJSONHeader is both allowed
// and exposed per spec.md §4.10/§6, so a cross-origin client can read
// x-is-superjson off the response and decide whether to run the tagged
// codec's decode path.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", SuperJSONHeader},
		ExposedHeaders:   []string{SuperJSONHeader},
		AllowCredentials: true,
		MaxAge:           600,
	}
}

func (c *CORSConfig) apply(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := c.matchOrigin(origin)
	if allowed == "" {
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", allowed)
	if c.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.Header().Add("Vary", "Origin")
	if len(c.ExposedHeaders) > 0 {
		w.Header().Set("Access-Control-Expose-Headers", strings.Join(c.ExposedHeaders, ", "))
	}

	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(c.AllowedMethods, ", "))
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(c.AllowedHeaders, ", "))
		if c.MaxAge > 0 {
			w.Header().Set("Access-Control-Max-Age", strconv.Itoa(c.MaxAge))
		}
	}
}

func (c *CORSConfig) matchOrigin(origin string) string {
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" {
			if c.AllowCredentials {
				return origin
			}
			return "*"
		}
		if allowed == origin {
			return origin
		}
	}
	return ""
}
