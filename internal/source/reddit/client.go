// Package reddit implements the secondary detail source: an application-only
// OAuth2 client that returns the ranked top-level comments of a submission.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/JakeFAU/thread-harvester/internal/harvest"
)

// Default endpoints for the application-only OAuth flow.
const (
	DefaultTokenURL   = "https://www.reddit.com/api/v1/access_token"
	DefaultAPIBaseURL = "https://oauth.reddit.com"

	defaultTimeout      = 30 * time.Second
	defaultCommentLimit = 100
	opComments          = "fetch comments"
)

// Config carries the client credentials and endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	TokenURL     string
	APIBaseURL   string
	Timeout      time.Duration
	CommentLimit int
}

// Client is the credentialed detail-source capability. It is created once
// per run and released with Close.
type Client struct {
	http  *http.Client
	base  *url.URL
	limit int
}

// New builds a Client. Tokens are fetched lazily on the first request and
// refreshed on expiry.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("reddit client id and secret are required")
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, errors.New("reddit user agent is required")
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CommentLimit <= 0 {
		cfg.CommentLimit = defaultCommentLimit
	}
	base, err := url.Parse(strings.TrimRight(cfg.APIBaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}

	transport := &userAgentTransport{base: http.DefaultTransport, agent: cfg.UserAgent}
	tokenClient := &http.Client{Transport: transport, Timeout: cfg.Timeout}
	oauthCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, tokenClient)

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	httpClient := cc.Client(oauthCtx)
	httpClient.Timeout = cfg.Timeout

	return &Client{http: httpClient, base: base, limit: cfg.CommentLimit}, nil
}

// Comments returns the top-level comments of a submission in "best" order.
// Collapsed "more" stubs are skipped, never expanded.
func (c *Client) Comments(ctx context.Context, id string) ([]harvest.Comment, error) {
	id = strings.TrimPrefix(strings.TrimSpace(id), "t3_")
	if id == "" {
		return nil, errors.New("submission id is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.commentsURL(id), nil)
	if err != nil {
		return nil, fmt.Errorf("build comments request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &harvest.TransportError{Op: opComments, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("submission %s: %w", id, harvest.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &harvest.TransportError{
			Op:         opComments,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("submission %s: unexpected status", id),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &harvest.TransportError{Op: opComments, Err: fmt.Errorf("read body: %w", err)}
	}
	comments, err := decodeComments(body)
	if err != nil {
		return nil, &harvest.ProtocolError{Op: opComments, Err: fmt.Errorf("submission %s: %w", id, err)}
	}
	return comments, nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) commentsURL(id string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/comments/" + url.PathEscape(id)
	q := url.Values{}
	q.Set("sort", "best")
	q.Set("depth", "1")
	q.Set("raw_json", "1")
	q.Set("limit", strconv.Itoa(c.limit))
	u.RawQuery = q.Encode()
	return u.String()
}

type listing struct {
	Data struct {
		Children []struct {
			Kind string          `json:"kind"`
			Data json.RawMessage `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type commentData struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

// decodeComments reads the two-listing detail response: the submission
// listing followed by the comment listing.
func decodeComments(body []byte) ([]harvest.Comment, error) {
	var listings []listing
	if err := json.Unmarshal(body, &listings); err != nil {
		return nil, fmt.Errorf("decode detail view: %w", err)
	}
	if len(listings) < 2 {
		return nil, fmt.Errorf("detail view has %d listings, want 2", len(listings))
	}
	children := listings[1].Data.Children
	comments := make([]harvest.Comment, 0, len(children))
	for _, child := range children {
		if child.Kind != "t1" {
			continue
		}
		var data commentData
		if err := json.Unmarshal(child.Data, &data); err != nil {
			return nil, fmt.Errorf("decode comment: %w", err)
		}
		comments = append(comments, harvest.Comment{Author: data.Author, Body: data.Body})
	}
	return comments, nil
}

type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	resp, err := t.base.RoundTrip(clone)
	if err != nil {
		return nil, fmt.Errorf("round trip: %w", err)
	}
	return resp, nil
}

func (t *userAgentTransport) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	if ci, ok := t.base.(closeIdler); ok {
		ci.CloseIdleConnections()
	}
}
