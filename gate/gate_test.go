package gate_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mcpguard/mcpguard/gate"
)

const metadataURL = "https://mcp.example.com/.well-known/oauth-protected-resource"

func newGate(t *testing.T, opts ...gate.Option) (*gate.Gate, *int) {
	t.Helper()
	var forwarded int
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarded++
		w.WriteHeader(http.StatusOK)
	})
	return gate.New("/mcp", gate.DefaultChallenge(metadataURL), next, opts...), &forwarded
}

func TestChallengeHeaderFormat(t *testing.T) {
	ch := gate.DefaultChallenge(metadataURL)
	want := `Bearer error="invalid_token", error_description="Missing bearer token", resource_metadata="` + metadataURL + `"`
	if got := ch.Header(); got != want {
		t.Fatalf("unexpected challenge header:\nwant %q\ngot  %q", want, got)
	}
}

func TestChallengeHeaderIdempotent(t *testing.T) {
	ch := gate.DefaultChallenge(metadataURL)
	first := ch.Header()
	second := ch.Header()
	if first != second {
		t.Fatalf("challenge header not idempotent: %q vs %q", first, second)
	}
}

func TestChallengeHeaderEscapesQuotes(t *testing.T) {
	ch := gate.Challenge{
		ErrorCode:           "invalid_token",
		ErrorDescription:    `say "hello"`,
		ResourceMetadataURL: `https://example.com/meta?q="x"`,
	}
	got := ch.Header()
	if !strings.Contains(got, `error_description="say \"hello\""`) {
		t.Fatalf("description quotes not escaped: %q", got)
	}
	if !strings.Contains(got, `resource_metadata="https://example.com/meta?q=\"x\""`) {
		t.Fatalf("metadata URL quotes not escaped: %q", got)
	}
}

func TestChallengeHeaderEscapesBackslashes(t *testing.T) {
	ch := gate.Challenge{ErrorCode: `a\b`}
	if got, want := ch.Header(), `Bearer error="a\\b"`; got != want {
		t.Fatalf("want %q got %q", want, got)
	}
}

func TestChallengeHeaderOmitsEmptyAttributes(t *testing.T) {
	ch := gate.Challenge{ErrorCode: "invalid_token"}
	if got, want := ch.Header(), `Bearer error="invalid_token"`; got != want {
		t.Fatalf("want %q got %q", want, got)
	}
	if got, want := (gate.Challenge{}).Header(), "Bearer"; got != want {
		t.Fatalf("want %q got %q", want, got)
	}
}

func TestGateChallengesMissingCredential(t *testing.T) {
	cases := []struct {
		name  string
		value string
	}{
		{"no header", ""},
		{"whitespace token", "Bearer   "},
		{"scheme only", "Bearer"},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"token without scheme", "abc123"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, forwarded := newGate(t)
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tc.value != "" {
				req.Header.Set("Authorization", tc.value)
			}
			rec := httptest.NewRecorder()
			g.ServeHTTP(rec, req)

			if want, got := http.StatusUnauthorized, rec.Code; want != got {
				t.Fatalf("unexpected status: want %d got %d", want, got)
			}
			if want, got := g.ChallengeHeader(), rec.Header().Get("WWW-Authenticate"); want != got {
				t.Fatalf("unexpected WWW-Authenticate:\nwant %q\ngot  %q", want, got)
			}
			body, _ := io.ReadAll(rec.Body)
			if want, got := "Authentication required", string(body); want != got {
				t.Fatalf("unexpected body: want %q got %q", want, got)
			}
			if *forwarded != 0 {
				t.Fatalf("request was forwarded despite missing credential")
			}
		})
	}
}

func TestGateForwardsShapedBearerWithoutValidation(t *testing.T) {
	cases := []struct {
		name  string
		value string
	}{
		{"opaque token", "Bearer abc123"},
		{"uppercase scheme", "BEARER abc123"},
		{"lowercase scheme", "bearer abc123"},
		{"padded token", "Bearer   abc123  "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, forwarded := newGate(t)
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			req.Header.Set("Authorization", tc.value)
			rec := httptest.NewRecorder()
			g.ServeHTTP(rec, req)

			if want, got := http.StatusOK, rec.Code; want != got {
				t.Fatalf("unexpected status: want %d got %d", want, got)
			}
			if *forwarded != 1 {
				t.Fatalf("request was not forwarded")
			}
		})
	}
}

func TestGateForwardsPreflightUnconditionally(t *testing.T) {
	for _, path := range []string{"/mcp", "/mcp/sub", "/other"} {
		g, forwarded := newGate(t)
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		rec := httptest.NewRecorder()
		g.ServeHTTP(rec, req)

		if rec.Code == http.StatusUnauthorized {
			t.Fatalf("OPTIONS %s was challenged", path)
		}
		if *forwarded != 1 {
			t.Fatalf("OPTIONS %s was not forwarded", path)
		}
	}
}

func TestGateIgnoresPathsOutsidePrefix(t *testing.T) {
	g, forwarded := newGate(t)
	req := httptest.NewRequest(http.MethodGet, "/.well-known/oauth-protected-resource", nil)
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	if want, got := http.StatusOK, rec.Code; want != got {
		t.Fatalf("unexpected status: want %d got %d", want, got)
	}
	if *forwarded != 1 {
		t.Fatalf("ungated path was not forwarded")
	}
}

func TestGateExemptPathUnderPrefix(t *testing.T) {
	g, forwarded := newGate(t, gate.WithExemptPath("/mcp/.well-known/oauth-protected-resource"))
	req := httptest.NewRequest(http.MethodGet, "/mcp/.well-known/oauth-protected-resource", nil)
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	if want, got := http.StatusOK, rec.Code; want != got {
		t.Fatalf("unexpected status: want %d got %d", want, got)
	}
	if *forwarded != 1 {
		t.Fatalf("exempt path was not forwarded")
	}
}

func TestHasBearerToken(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"Bearer", false},
		{"Bearer ", false},
		{"Bearer \t ", false},
		{"Bearer tok", true},
		{"bEaReR tok", true},
		{"Basic tok", false},
		{"Bearertok", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
		if tc.value != "" {
			req.Header.Set("Authorization", tc.value)
		}
		if got := gate.HasBearerToken(req); got != tc.want {
			t.Errorf("HasBearerToken(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}
