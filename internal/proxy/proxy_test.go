package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func testProxy(t *testing.T, upstream http.HandlerFunc) *httptest.Server {
	t.Helper()
	backend := httptest.NewServer(upstream)
	t.Cleanup(backend.Close)

	e := echo.New()
	New(backend.URL, zap.NewNop()).Register(e)
	front := httptest.NewServer(e)
	t.Cleanup(front.Close)
	return front
}

func TestForwardsPathQueryAndBody(t *testing.T) {
	var gotPath, gotQuery, gotBody, gotBypass string
	front := testProxy(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotBypass = r.Header.Get("ngrok-skip-browser-warning")
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	resp, err := http.Post(front.URL+"/auth/messages/send/?v=1", "application/json", strings.NewReader(`{"text":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if gotPath != "/auth/messages/send/" {
		t.Errorf("path = %q, want /auth/messages/send/", gotPath)
	}
	if gotQuery != "v=1" {
		t.Errorf("query = %q, want v=1", gotQuery)
	}
	if gotBody != `{"text":"hi"}` {
		t.Errorf("body = %q", gotBody)
	}
	if gotBypass != "1" {
		t.Errorf("bypass header = %q, want 1", gotBypass)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201 (mirrored)", resp.StatusCode)
	}
	if resp.Header.Get("X-Upstream") != "yes" {
		t.Error("upstream headers must be forwarded")
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header must be set")
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != `{"ok":true}` {
		t.Errorf("body = %q", data)
	}
}

func TestUpstreamErrorStatusMirrored(t *testing.T) {
	front := testProxy(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})

	resp, err := http.Get(front.URL + "/auth/friends/")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestUnreachableUpstream(t *testing.T) {
	e := echo.New()
	New("http://127.0.0.1:1", zap.NewNop()).Register(e)
	front := httptest.NewServer(e)
	defer front.Close()

	resp, err := http.Get(front.URL + "/anything")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "proxy error") {
		t.Errorf("body = %q, want proxy error payload", data)
	}
}

func TestRedirectsPassedThrough(t *testing.T) {
	front := testProxy(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://elsewhere.example/", http.StatusFound)
	})

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(front.URL + "/r")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want 302 (redirect not followed)", resp.StatusCode)
	}
	if resp.Header.Get("Location") != "https://elsewhere.example/" {
		t.Errorf("location = %q", resp.Header.Get("Location"))
	}
}
