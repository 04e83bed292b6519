// Package wellknown serves the OAuth 2.0 Protected Resource Metadata
// document (RFC 9728). The document tells an uncredentialed client which
// authorization servers and scopes apply to this resource; it is built once
// at startup and never mutated, and the endpoint that serves it must remain
// reachable without credentials.
package wellknown

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// MetadataPath is the default well-known path for the document.
const MetadataPath = "/.well-known/oauth-protected-resource"

// ProtectedResourceMetadata is the RFC 9728 discovery document.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers,omitempty"`
	JwksURI                string   `json:"jwks_uri,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
	ResourceName           string   `json:"resource_name,omitempty"`
	ResourceDocumentation  string   `json:"resource_documentation,omitempty"`
	ResourcePolicyURI      string   `json:"resource_policy_uri,omitempty"`
	ResourceTosURI         string   `json:"resource_tos_uri,omitempty"`
}

// Handler serves a fixed ProtectedResourceMetadata document. GET returns the
// JSON document; OPTIONS answers CORS preflight with 204 and no body. Both
// allow any origin: discovery must work for browser-based clients before
// they hold any credential.
type Handler struct {
	doc ProtectedResourceMetadata
}

var _ http.Handler = (*Handler)(nil)

// NewHandler builds a Handler around an immutable copy of doc.
func NewHandler(doc ProtectedResourceMetadata) *Handler {
	doc.AuthorizationServers = append([]string(nil), doc.AuthorizationServers...)
	doc.ScopesSupported = append([]string(nil), doc.ScopesSupported...)
	doc.BearerMethodsSupported = append([]string(nil), doc.BearerMethodsSupported...)
	return &Handler{doc: doc}
}

// Document returns a copy of the served document.
func (h *Handler) Document() ProtectedResourceMetadata {
	doc := h.doc
	doc.AuthorizationServers = append([]string(nil), h.doc.AuthorizationServers...)
	doc.ScopesSupported = append([]string(nil), h.doc.ScopesSupported...)
	doc.BearerMethodsSupported = append([]string(nil), h.doc.BearerMethodsSupported...)
	return doc
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		h.serveOptions(w)
	case http.MethodGet:
		h.serveGet(w)
	default:
		w.Header().Set("Allow", "GET, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) serveOptions(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) serveGet(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Vary", "Origin")
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.doc); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode protected resource metadata: %v", err), http.StatusInternalServerError)
	}
}
