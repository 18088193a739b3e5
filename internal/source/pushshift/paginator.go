// Package pushshift implements the primary-source Paginator: descending,
// watermark-bounded pages of submissions for one subject.
package pushshift

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/thread-harvester/internal/harvest"
)

const (
	// DefaultSearchURL is the public submission search endpoint.
	DefaultSearchURL = "https://api.pushshift.io/reddit/search/submission"
	// DefaultBatchSize is the number of items requested per page.
	DefaultBatchSize = 500

	opFetchPage = "fetch page"
)

// Config controls the search request.
type Config struct {
	SearchURL string
	BatchSize int
}

// Paginator fetches pages through a harvest.Fetcher. It holds no crawl state
// and never retries.
type Paginator struct {
	fetcher harvest.Fetcher
	cfg     Config
}

// New builds a Paginator.
func New(fetcher harvest.Fetcher, cfg Config) (*Paginator, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if _, err := url.Parse(cfg.SearchURL); err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}
	return &Paginator{fetcher: fetcher, cfg: cfg}, nil
}

// FetchPage returns the newest items of subject older than the watermark,
// newest first. An empty slice means nothing older exists.
func (p *Paginator) FetchPage(
	ctx context.Context,
	subject string,
	watermark harvest.Watermark,
) ([]harvest.RawItem, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, errors.New("subject is required")
	}
	pageURL, err := p.buildURL(subject, watermark)
	if err != nil {
		return nil, err
	}
	resp, err := p.fetcher.Fetch(ctx, harvest.FetchRequest{
		URL:     pageURL,
		Headers: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		return nil, &harvest.TransportError{Op: opFetchPage, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &harvest.TransportError{
			Op:         opFetchPage,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server returned status code %d", resp.StatusCode),
		}
	}
	items, err := decodePage(resp.Body)
	if err != nil {
		return nil, &harvest.ProtocolError{Op: opFetchPage, Err: err}
	}
	return items, nil
}

func (p *Paginator) buildURL(subject string, watermark harvest.Watermark) (string, error) {
	u, err := url.Parse(p.cfg.SearchURL)
	if err != nil {
		return "", fmt.Errorf("parse search url: %w", err)
	}
	q := u.Query()
	q.Set("subreddit", subject)
	q.Set("size", strconv.Itoa(p.cfg.BatchSize))
	q.Set("sort", "desc")
	q.Set("sort_type", "created_utc")
	if watermark.Set {
		q.Set("before", strconv.FormatInt(watermark.Before, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type pageEnvelope struct {
	Data *[]rawSubmission `json:"data"`
}

type rawSubmission struct {
	item harvest.RawItem
}

// UnmarshalJSON keeps the distinction between an absent and an empty body and
// records whether the media key was present at all.
func (s *rawSubmission) UnmarshalJSON(data []byte) error {
	var fields struct {
		ID         string      `json:"id"`
		Author     string      `json:"author"`
		Title      string      `json:"title"`
		CreatedUTC json.Number `json:"created_utc"`
		Selftext   *string     `json:"selftext"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode submission: %w", err)
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("decode submission keys: %w", err)
	}
	if fields.ID == "" {
		return errors.New("submission without id")
	}
	created, err := parseTimestamp(fields.CreatedUTC)
	if err != nil {
		return fmt.Errorf("submission %s: %w", fields.ID, err)
	}
	_, hasMedia := keys["media"]
	s.item = harvest.RawItem{
		ID:         fields.ID,
		Author:     fields.Author,
		Title:      fields.Title,
		CreatedUTC: created,
		Body:       fields.Selftext,
		HasMedia:   hasMedia,
	}
	return nil
}

func parseTimestamp(raw json.Number) (int64, error) {
	if raw == "" {
		return 0, errors.New("missing created_utc")
	}
	if v, err := raw.Int64(); err == nil {
		return v, nil
	}
	f, err := raw.Float64()
	if err != nil {
		return 0, fmt.Errorf("invalid created_utc %q: %w", raw, err)
	}
	return int64(f), nil
}

func decodePage(body []byte) ([]harvest.RawItem, error) {
	var env pageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	if env.Data == nil {
		return nil, errors.New(`page has no "data" array`)
	}
	items := make([]harvest.RawItem, 0, len(*env.Data))
	for _, s := range *env.Data {
		items = append(items, s.item)
	}
	return items, nil
}
