package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleUpgradeRejectsBadToken(t *testing.T) {
	s := NewServer("correct-secret", nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/?token=wrong&host=127.0.0.1&port=9987")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if len(s.clients) != 0 {
		t.Fatalf("clients = %d, want 0 (no session should be allocated on auth failure)", len(s.clients))
	}
}

func TestHandleUpgradeRejectsMissingToken(t *testing.T) {
	s := NewServer("correct-secret", nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/?host=127.0.0.1&port=9987")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestHandleUpgradeRejectsMissingHost(t *testing.T) {
	s := NewServer("correct-secret", nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/?token=correct-secret")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if len(s.clients) != 0 {
		t.Fatalf("clients = %d, want 0", len(s.clients))
	}
}

func TestHandleUpgradeRejectsInvalidPort(t *testing.T) {
	s := NewServer("correct-secret", nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/?token=correct-secret&host=127.0.0.1&port=notanumber")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleHealthReportsStatusOK(t *testing.T) {
	s := NewServer("secret", nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("CORS header = %q, want *", got)
	}

	var body struct {
		Status string  `json:"status"`
		Uptime float64 `json:"uptime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("status field = %q, want ok", body.Status)
	}
	if body.Uptime < 0 {
		t.Fatalf("uptime = %v, want >= 0", body.Uptime)
	}
}

// TestComputeAcceptMatchesRFC6455Example uses the worked example from RFC
// 6455 section 1.3.
func TestComputeAcceptMatchesRFC6455Example(t *testing.T) {
	got := computeAccept("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("computeAccept = %q, want %q", got, want)
	}
}

func TestNewConnIDIsUniqueAndHex(t *testing.T) {
	a := newConnID()
	b := newConnID()
	if a == b {
		t.Fatal("expected distinct connection ids")
	}
	if len(a) != 16 {
		t.Fatalf("len(id) = %d, want 16 hex chars", len(a))
	}
}
