package githost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClientWithHTTPClient(srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestCreatePullRequest(t *testing.T) {
	var gotBody map[string]interface{}
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/repos/org/app/pulls" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"number": 7, "html_url": "https://github.com/org/app/pull/7"}`))
	}))

	url, err := c.CreatePullRequest(context.Background(), "org", "app",
		"Improve test coverage for src/app.ts", "## Summary\n", "stitch/improve-src-app-ts", "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://github.com/org/app/pull/7" {
		t.Errorf("url = %q, want PR html url", url)
	}

	if gotBody["title"] != "Improve test coverage for src/app.ts" {
		t.Errorf("title = %v", gotBody["title"])
	}
	if gotBody["head"] != "stitch/improve-src-app-ts" || gotBody["base"] != "main" {
		t.Errorf("head/base = %v/%v", gotBody["head"], gotBody["base"])
	}
	if gotBody["maintainer_can_modify"] != true {
		t.Error("maintainer_can_modify should be set")
	}
}

func TestCreatePullRequest_APIError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message": "Validation Failed"}`))
	}))

	_, err := c.CreatePullRequest(context.Background(), "org", "app", "t", "b", "head", "main")
	if err == nil {
		t.Fatal("expected error from API failure")
	}
}

func TestCreatePullRequest_MissingArgs(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made")
	}))

	if _, err := c.CreatePullRequest(context.Background(), "", "app", "t", "b", "h", "m"); err == nil {
		t.Error("expected error for missing owner")
	}
	if _, err := c.CreatePullRequest(context.Background(), "org", "app", "", "b", "h", "m"); err == nil {
		t.Error("expected error for missing title")
	}
	if _, err := c.CreatePullRequest(context.Background(), "org", "app", "t", "b", "", "m"); err == nil {
		t.Error("expected error for missing head")
	}
}

func TestTokenUser(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"login": "octocat"}`))
	}))

	login, err := c.TokenUser(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if login != "octocat" {
		t.Errorf("login = %q, want %q", login, "octocat")
	}
}

func TestNewClientWithHTTPClient_BadURL(t *testing.T) {
	if _, err := NewClientWithHTTPClient(http.DefaultClient, "://bad"); err == nil {
		t.Fatal("expected error for unparsable base URL")
	}
}
