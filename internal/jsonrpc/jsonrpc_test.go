package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte(`{"jsonrpc":"2.0","method":"tools/list","id":7}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Method != "tools/list" {
		t.Fatalf("unexpected method %q", req.Method)
	}
	if req.IsNotification() {
		t.Fatal("request with ID must not be a notification")
	}
	if req.ID.String() != "7" {
		t.Fatalf("unexpected ID %q", req.ID.String())
	}
}

func TestParseRequestNotification(t *testing.T) {
	req, err := ParseRequest([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !req.IsNotification() {
		t.Fatal("request without ID must be a notification")
	}
}

func TestParseRequestRejectsBadMessages(t *testing.T) {
	cases := []string{
		`{"jsonrpc":"1.0","method":"x","id":1}`,
		`{"jsonrpc":"2.0","id":1}`,
		`not json`,
	}
	for _, body := range cases {
		if _, err := ParseRequest([]byte(body)); err == nil {
			t.Errorf("expected error for %s", body)
		}
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`"abc"`, "abc"},
		{`42`, "42"},
		{`4.5`, "4.5"},
	}
	for _, tc := range cases {
		var id RequestID
		if err := json.Unmarshal([]byte(tc.raw), &id); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.raw, err)
		}
		if id.String() != tc.want {
			t.Errorf("String() = %q, want %q", id.String(), tc.want)
		}
		out, err := json.Marshal(&id)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(out) != tc.raw {
			t.Errorf("round trip %s -> %s", tc.raw, out)
		}
	}
}

func TestResponseEncoding(t *testing.T) {
	res, err := NewResultResponse(NewRequestID(1), map[string]string{"ok": "yes"})
	if err != nil {
		t.Fatalf("build response: %v", err)
	}
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","result":{"ok":"yes"},"id":1}`
	if string(b) != want {
		t.Fatalf("unexpected encoding:\nwant %s\ngot  %s", want, b)
	}
}
