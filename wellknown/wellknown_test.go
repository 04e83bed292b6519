package wellknown_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcpguard/mcpguard/wellknown"
)

func testDocument() wellknown.ProtectedResourceMetadata {
	return wellknown.ProtectedResourceMetadata{
		Resource:               "https://mcp.example.com/mcp",
		AuthorizationServers:   []string{"https://auth.example.com"},
		ScopesSupported:        []string{"orders:read", "orders:write"},
		BearerMethodsSupported: []string{"header"},
		ResourceName:           "example",
	}
}

func TestGetReturnsDocument(t *testing.T) {
	h := wellknown.NewHandler(testDocument())
	req := httptest.NewRequest(http.MethodGet, wellknown.MetadataPath, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if want, got := http.StatusOK, rec.Code; want != got {
		t.Fatalf("unexpected status: want %d got %d", want, got)
	}
	if want, got := "application/json", rec.Header().Get("Content-Type"); want != got {
		t.Fatalf("unexpected content type: want %q got %q", want, got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("unexpected CORS origin header: %q", got)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	for _, key := range []string{"resource", "authorization_servers", "scopes_supported", "bearer_methods_supported"} {
		if _, ok := body[key]; !ok {
			t.Errorf("document missing key %q", key)
		}
	}
	if want, got := "https://mcp.example.com/mcp", body["resource"]; want != got {
		t.Fatalf("unexpected resource: want %q got %v", want, got)
	}
}

func TestOptionsReturnsNoContent(t *testing.T) {
	h := wellknown.NewHandler(testDocument())
	req := httptest.NewRequest(http.MethodOptions, wellknown.MetadataPath, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if want, got := http.StatusNoContent, rec.Code; want != got {
		t.Fatalf("unexpected status: want %d got %d", want, got)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, OPTIONS" {
		t.Fatalf("unexpected preflight methods: %q", got)
	}
}

func TestOtherMethodsRejected(t *testing.T) {
	h := wellknown.NewHandler(testDocument())
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		req := httptest.NewRequest(method, wellknown.MetadataPath, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if want, got := http.StatusMethodNotAllowed, rec.Code; want != got {
			t.Errorf("%s: unexpected status: want %d got %d", method, want, got)
		}
	}
}

func TestDocumentReturnsCopy(t *testing.T) {
	h := wellknown.NewHandler(testDocument())
	doc := h.Document()
	doc.ScopesSupported[0] = "mutated"
	if got := h.Document().ScopesSupported[0]; got != "orders:read" {
		t.Fatalf("document was mutated through the copy: %q", got)
	}
}
