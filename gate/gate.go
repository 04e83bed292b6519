// Package gate implements the request interceptor that protects the MCP
// namespace. Requests under the protected prefix must present a
// shape-valid bearer credential; everything else is forwarded untouched.
// The gate never validates tokens cryptographically: that responsibility
// belongs downstream. Its only failure mode is the 401 challenge response,
// which carries a WWW-Authenticate header pointing clients at the
// protected resource metadata document.
package gate

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/mcpguard/mcpguard/internal/metrics"
)

const (
	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"

	challengeBody = "Authentication required"
)

// Challenge describes the WWW-Authenticate value attached to 401 responses.
// Build it once at startup; Header is deterministic for a given value.
type Challenge struct {
	// ErrorCode is the RFC 6750 error code, e.g. "invalid_token".
	ErrorCode string
	// ErrorDescription is a short human-readable explanation.
	ErrorDescription string
	// ResourceMetadataURL is the externally reachable URL of the protected
	// resource metadata document.
	ResourceMetadataURL string
}

// DefaultChallenge returns the standard missing-credential challenge for the
// given metadata document URL.
func DefaultChallenge(resourceMetadataURL string) Challenge {
	return Challenge{
		ErrorCode:           "invalid_token",
		ErrorDescription:    "Missing bearer token",
		ResourceMetadataURL: resourceMetadataURL,
	}
}

// Header renders the challenge in RFC 6750 challenge grammar:
//
//	Bearer error="...", error_description="...", resource_metadata="..."
//
// Empty attributes are omitted. Backslashes and double quotes inside
// attribute values are escaped so the header stays parseable.
func (c Challenge) Header() string {
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	pieces := make([]string, 0, 3)
	if c.ErrorCode != "" {
		pieces = append(pieces, `error="`+esc.Replace(c.ErrorCode)+`"`)
	}
	if c.ErrorDescription != "" {
		pieces = append(pieces, `error_description="`+esc.Replace(c.ErrorDescription)+`"`)
	}
	if c.ResourceMetadataURL != "" {
		pieces = append(pieces, `resource_metadata="`+esc.Replace(c.ResourceMetadataURL)+`"`)
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}

// Gate is the challenge middleware. It wraps a downstream handler and
// consults only immutable state, so a single Gate is safe for concurrent
// use across requests.
type Gate struct {
	prefix string
	header string
	exempt map[string]struct{}
	log    *slog.Logger
	next   http.Handler
}

var _ http.Handler = (*Gate)(nil)

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the slog logger used for gate decisions.
func WithLogger(log *slog.Logger) Option {
	return func(g *Gate) { g.log = log }
}

// WithExemptPath marks an exact path as ungated even when it falls under
// the protected prefix. The metadata document must stay reachable without
// credentials regardless of where it is mounted.
func WithExemptPath(path string) Option {
	return func(g *Gate) { g.exempt[path] = struct{}{} }
}

// New builds a Gate protecting protectedPrefix with the given challenge,
// forwarding admitted requests to next. The challenge header is rendered
// once here and reused byte-for-byte on every rejection.
func New(protectedPrefix string, ch Challenge, next http.Handler, opts ...Option) *Gate {
	g := &Gate{
		prefix: protectedPrefix,
		header: ch.Header(),
		exempt: make(map[string]struct{}),
		log:    slog.Default(),
		next:   next,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ChallengeHeader returns the precomputed WWW-Authenticate value.
func (g *Gate) ChallengeHeader() string {
	return g.header
}

func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Preflight probes precede any credentialed request and browsers do not
	// attach credentials to them; they must never be blocked.
	if r.Method == http.MethodOptions {
		g.next.ServeHTTP(w, r)
		return
	}

	if !strings.HasPrefix(r.URL.Path, g.prefix) {
		g.next.ServeHTTP(w, r)
		return
	}

	if _, ok := g.exempt[r.URL.Path]; ok {
		g.next.ServeHTTP(w, r)
		return
	}

	if !HasBearerToken(r) {
		g.log.InfoContext(r.Context(), "gate.challenge", slog.String("path", r.URL.Path))
		metrics.GateDecisions.WithLabelValues("challenge").Inc()
		w.Header().Set(wwwAuthenticateHeader, g.header)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(challengeBody))
		return
	}

	metrics.GateDecisions.WithLabelValues("forward").Inc()
	g.next.ServeHTTP(w, r)
}

// HasBearerToken reports whether the request carries a shape-valid bearer
// credential: an Authorization header whose scheme is "Bearer"
// (case-insensitive) followed by a non-empty token after trimming
// whitespace. Malformed headers simply fail the check; there is no error
// path.
func HasBearerToken(r *http.Request) bool {
	const bearerPrefix = "Bearer "
	header := r.Header.Get(authorizationHeader)
	if len(header) <= len(bearerPrefix) {
		return false
	}
	if !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return false
	}
	return strings.TrimSpace(header[len(bearerPrefix):]) != ""
}
