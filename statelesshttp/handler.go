// Package statelesshttp implements the HTTP transport for a stateless
// protected MCP resource server. It owns the route table and composes the
// interceptor chain: transport security, optional rate limiting, the
// bearer challenge gate, and finally JSON-RPC dispatch. The well-known
// protected resource metadata endpoint is registered outside the protected
// namespace so discovery works without credentials.
package statelesshttp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/mcpguard/mcpguard/gate"
	"github.com/mcpguard/mcpguard/internal/jsonrpc"
	"github.com/mcpguard/mcpguard/internal/logctx"
	"github.com/mcpguard/mcpguard/internal/metrics"
	"github.com/mcpguard/mcpguard/service"
	"github.com/mcpguard/mcpguard/transportsec"
	"github.com/mcpguard/mcpguard/wellknown"
)

var jsonMediaType = contenttype.NewMediaType("application/json")

// writeJSONError emits a minimal JSON body for HTTP-layer rejections before
// a JSON-RPC exchange is possible. This is transport-level, not JSON-RPC
// framing. Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger   *slog.Logger
	security transportsec.Settings
	limit    float64
	burst    int
	metrics  bool
}

// WithLogger sets the slog logger used by the handler. If not provided,
// slog.Default() is used.
func WithLogger(log *slog.Logger) Option {
	return func(c *newConfig) { c.logger = log }
}

// WithTransportSecurity enables host/origin allowlist enforcement. Passing
// empty settings keeps the permissive default.
func WithTransportSecurity(s transportsec.Settings) Option {
	return func(c *newConfig) { c.security = s }
}

// WithRateLimit caps requests per second with the given burst. A
// non-positive limit disables limiting.
func WithRateLimit(limit float64, burst int) Option {
	return func(c *newConfig) { c.limit = limit; c.burst = burst }
}

// WithMetrics exposes Prometheus metrics on GET /metrics.
func WithMetrics() Option {
	return func(c *newConfig) { c.metrics = true }
}

// Handler is the drop-in http.Handler for the whole server.
type Handler struct {
	chain http.Handler
	gate  *gate.Gate
	prm   *wellknown.Handler
	log   *slog.Logger
}

var _ http.Handler = (*Handler)(nil)

// New constructs the transport handler.
//
// Required:
//   - publicEndpoint: externally visible URL of the MCP endpoint; its path
//     is the protected namespace prefix
//   - metadataPath: local path the metadata document is served at
//   - doc: the protected resource metadata document
//   - challenge: the WWW-Authenticate challenge issued by the gate
//   - svc: the JSON-RPC dispatch registry
func New(publicEndpoint string, metadataPath string, doc wellknown.ProtectedResourceMetadata, challenge gate.Challenge, svc *service.Server, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, fmt.Errorf("service is required")
	}
	mcpURL, err := url.Parse(publicEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid public endpoint %q: %w", publicEndpoint, err)
	}
	if mcpURL.Scheme != "https" && mcpURL.Scheme != "http" {
		return nil, fmt.Errorf("public endpoint must use HTTP or HTTPS scheme, got %q", mcpURL.Scheme)
	}
	mcpPath := mcpURL.Path
	if mcpPath == "" {
		mcpPath = "/"
	}

	cfg := &newConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	log := slog.New(logctx.Handler{Handler: cfg.logger.Handler()})

	h := &Handler{
		prm: wellknown.NewHandler(doc),
		log: log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("POST %s", mcpPath), h.makePostMCP(svc))
	mux.HandleFunc(fmt.Sprintf("OPTIONS %s", mcpPath), handlePreflight)
	mux.Handle(fmt.Sprintf("GET %s", metadataPath), h.prm)
	mux.Handle(fmt.Sprintf("OPTIONS %s", metadataPath), h.prm)
	if cfg.metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	// Interceptor chain, innermost first: gate guards the mux, the rate
	// limiter sheds load before the gate runs, transport security rejects
	// rebound hosts before anything else sees the request.
	h.gate = gate.New(mcpPath, challenge, mux, gate.WithLogger(log), gate.WithExemptPath(metadataPath))
	var chain http.Handler = h.gate
	if cfg.limit > 0 {
		chain = rateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.limit), cfg.burst))(chain)
	}
	chain = transportsec.Middleware(cfg.security, log)(chain)
	h.chain = chain
	return h, nil
}

// ChallengeHeader exposes the gate's precomputed WWW-Authenticate value.
func (h *Handler) ChallengeHeader() string {
	return h.gate.ChallengeHeader()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.chain.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// makePostMCP binds the dispatch registry to the POST handler for the MCP
// endpoint.
func (h *Handler) makePostMCP(svc *service.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		ctype, err := contenttype.GetMediaType(r)
		if err != nil || !ctype.Matches(jsonMediaType) {
			h.log.WarnContext(ctx, "content_type.unsupported")
			metrics.RequestsRejected.WithLabelValues("content_type").Inc()
			writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
			return
		}

		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			h.log.WarnContext(ctx, "json.decode.fail", slog.String("err", err.Error()))
			metrics.RequestsRejected.WithLabelValues("bad_json").Inc()
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if len(raw) > 0 && raw[0] == '[' {
			h.log.WarnContext(ctx, "jsonrpc.batch.forbidden")
			metrics.RequestsRejected.WithLabelValues("batch").Inc()
			writeJSONError(w, http.StatusBadRequest, "JSON-RPC batch arrays are not supported")
			return
		}

		req, err := jsonrpc.ParseRequest(raw)
		if err != nil {
			h.log.WarnContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
			metrics.RequestsRejected.WithLabelValues("bad_message").Inc()
			writeJSONError(w, http.StatusBadRequest, "invalid JSON-RPC message: "+err.Error())
			return
		}

		res := svc.Dispatch(ctx, req)
		if res == nil {
			// Notification: acknowledged, nothing to return.
			w.WriteHeader(http.StatusAccepted)
			return
		}

		w.Header().Set("Content-Type", jsonMediaType.String())
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(res); err != nil {
			h.log.ErrorContext(ctx, "response.write.fail", slog.String("err", err.Error()))
		}
	}
}

// handlePreflight answers CORS preflight probes on the MCP endpoint. The
// gate always forwards OPTIONS, so this runs for uncredentialed browsers.
func handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, Mcp-Protocol-Version")
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

func rateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				metrics.RequestsRejected.WithLabelValues("rate_limit").Inc()
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
