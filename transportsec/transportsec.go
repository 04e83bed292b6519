// Package transportsec guards the HTTP transport against DNS rebinding and
// unwanted cross-origin callers using configured allowlists of host names
// and origins. When both lists are empty the middleware is a no-op: this
// permissive default is a deliberate configuration contract, not an
// oversight.
package transportsec

import (
	"log/slog"
	"net/http"
	"strings"
)

// Settings holds the startup-computed allowlists. The zero value disables
// all checks.
type Settings struct {
	// AllowedHosts lists acceptable Host header values (host or host:port),
	// compared case-insensitively. Empty means any host is accepted.
	AllowedHosts []string
	// AllowedOrigins lists acceptable Origin header values, compared
	// case-insensitively. Empty means any origin is accepted. Requests
	// without an Origin header are never rejected by this check.
	AllowedOrigins []string
}

// Enabled reports whether any check is active.
func (s Settings) Enabled() bool {
	return len(s.AllowedHosts) > 0 || len(s.AllowedOrigins) > 0
}

// Middleware returns a handler chain element enforcing s. With checks
// disabled the original handler is returned unchanged.
func Middleware(s Settings, log *slog.Logger) func(http.Handler) http.Handler {
	if !s.Enabled() {
		return func(next http.Handler) http.Handler { return next }
	}
	hosts := lowerSet(s.AllowedHosts)
	origins := lowerSet(s.AllowedOrigins)
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(hosts) > 0 {
				if _, ok := hosts[strings.ToLower(r.Host)]; !ok {
					log.InfoContext(r.Context(), "transportsec.host.reject", slog.String("host", r.Host))
					http.Error(w, "misdirected request", http.StatusMisdirectedRequest)
					return
				}
			}
			if origin := r.Header.Get("Origin"); origin != "" && len(origins) > 0 {
				if _, ok := origins[strings.ToLower(origin)]; !ok {
					log.InfoContext(r.Context(), "transportsec.origin.reject", slog.String("origin", origin))
					http.Error(w, "origin not allowed", http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func lowerSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[strings.ToLower(item)] = struct{}{}
	}
	return set
}
