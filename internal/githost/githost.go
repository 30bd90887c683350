// Package githost talks to the GitHub API: opening pull requests for
// improvement branches and verifying token credentials.
package githost

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// Client wraps the GitHub REST client.
type Client struct {
	gh *github.Client
}

// NewClient returns a Client authenticated with a personal access token.
func NewClient(token string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	return &Client{gh: github.NewClient(tc)}
}

// NewClientWithHTTPClient returns a Client with a custom http.Client and
// base URL, for pointing tests at an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("githost: parse base URL: %w", err)
	}
	// go-github requires a trailing slash on the base URL.
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	client := github.NewClient(httpClient)
	client.BaseURL = u
	return &Client{gh: client}, nil
}

// CreatePullRequest opens a pull request from head into base and returns
// its HTML URL.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo, title, body, head, base string) (string, error) {
	if owner == "" || repo == "" {
		return "", fmt.Errorf("githost: owner and repo are required")
	}
	if title == "" {
		return "", fmt.Errorf("githost: title is required")
	}
	if head == "" || base == "" {
		return "", fmt.Errorf("githost: head and base branches are required")
	}

	pr, _, err := c.gh.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title:               github.String(title),
		Head:                github.String(head),
		Base:                github.String(base),
		Body:                github.String(body),
		MaintainerCanModify: github.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("githost: create pull request %s/%s %s -> %s: %w", owner, repo, head, base, err)
	}
	return pr.GetHTMLURL(), nil
}

// TokenUser returns the login of the authenticated user, proving the token
// is valid without mutating anything.
func (c *Client) TokenUser(ctx context.Context) (string, error) {
	user, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("githost: verify token: %w", err)
	}
	return user.GetLogin(), nil
}
