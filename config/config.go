// Package config loads process configuration from the environment. It is
// read once at startup; everything derived from it is immutable for the
// life of the process.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/joeshaw/envdecode"
)

// Config is the environment-driven configuration surface.
type Config struct {
	// ListenAddr is the host:port the HTTP server binds.
	ListenAddr string `env:"MCPGUARD_LISTEN_ADDR,default=127.0.0.1:8000"`

	// PublicEndpoint is the externally visible URL of the protected MCP
	// endpoint. Its path is the protected namespace prefix and its value is
	// the canonical resource identifier advertised in the metadata document.
	PublicEndpoint string `env:"MCPGUARD_PUBLIC_ENDPOINT,default=http://127.0.0.1:8000/mcp"`

	// MetadataPath is where the protected resource metadata document is
	// served on this process.
	MetadataPath string `env:"MCPGUARD_METADATA_PATH,default=/.well-known/oauth-protected-resource"`

	// MetadataURL is the externally reachable URL of the metadata document,
	// embedded in WWW-Authenticate challenges. When empty it is derived from
	// PublicEndpoint's origin and MetadataPath.
	MetadataURL string `env:"MCPGUARD_METADATA_URL,default="`

	// AuthServers is a comma-separated list of authorization server base
	// URIs a client may use to obtain a token.
	AuthServers string `env:"MCPGUARD_AUTH_SERVERS,default="`

	// Scopes is a comma-separated list of scopes the resource supports.
	Scopes string `env:"MCPGUARD_SCOPES,default="`

	// AllowedHosts and AllowedOrigins are comma-separated allowlists for
	// DNS-rebinding and cross-origin protection. When both are empty the
	// protection is disabled entirely.
	AllowedHosts   string `env:"MCPGUARD_ALLOWED_HOSTS,default="`
	AllowedOrigins string `env:"MCPGUARD_ALLOWED_ORIGINS,default="`

	// ServerName is a human-readable name surfaced in the metadata document
	// and initialize result.
	ServerName string `env:"MCPGUARD_SERVER_NAME,default=mcpguard"`

	// MetricsEnabled exposes Prometheus metrics on /metrics when true.
	MetricsEnabled bool `env:"MCPGUARD_METRICS,default=true"`

	// RateLimit caps requests per second across the handler; zero disables
	// limiting. RateBurst is the burst allowance when limiting is active.
	RateLimit float64 `env:"MCPGUARD_RATE_LIMIT,default=0"`
	RateBurst int     `env:"MCPGUARD_RATE_BURST,default=10"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that cannot be expressed as struct tags.
func (c *Config) Validate() error {
	u, err := url.Parse(c.PublicEndpoint)
	if err != nil {
		return fmt.Errorf("invalid public endpoint %q: %w", c.PublicEndpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("public endpoint must use HTTP or HTTPS scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return fmt.Errorf("public endpoint %q must include a path prefix for the protected namespace", c.PublicEndpoint)
	}
	if !strings.HasPrefix(c.MetadataPath, "/") {
		return fmt.Errorf("metadata path %q must be absolute", c.MetadataPath)
	}
	return nil
}

// ProtectedPrefix returns the path prefix of the protected namespace.
func (c *Config) ProtectedPrefix() string {
	u, err := url.Parse(c.PublicEndpoint)
	if err != nil {
		return "/mcp"
	}
	return u.Path
}

// ResolvedMetadataURL returns MetadataURL, or derives it from the public
// endpoint origin and the metadata path when unset.
func (c *Config) ResolvedMetadataURL() string {
	if c.MetadataURL != "" {
		return c.MetadataURL
	}
	u, err := url.Parse(c.PublicEndpoint)
	if err != nil {
		return c.MetadataPath
	}
	derived := url.URL{Scheme: u.Scheme, Host: u.Host, Path: c.MetadataPath}
	return derived.String()
}

// AuthorizationServers returns the parsed authorization server list.
func (c *Config) AuthorizationServers() []string { return SplitList(c.AuthServers) }

// ScopesSupported returns the parsed scope list.
func (c *Config) ScopesSupported() []string { return SplitList(c.Scopes) }

// AllowedHostList returns the parsed host allowlist.
func (c *Config) AllowedHostList() []string { return SplitList(c.AllowedHosts) }

// AllowedOriginList returns the parsed origin allowlist.
func (c *Config) AllowedOriginList() []string { return SplitList(c.AllowedOrigins) }

// SplitList splits a comma-separated value, trimming whitespace around
// items and dropping empty entries.
func SplitList(value string) []string {
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
