package pushshift

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/thread-harvester/internal/harvest"
)

type fakeFetcher struct {
	resp     harvest.FetchResponse
	err      error
	requests []harvest.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req harvest.FetchRequest) (harvest.FetchResponse, error) {
	f.requests = append(f.requests, req)
	return f.resp, f.err
}

func okPage(body string) harvest.FetchResponse {
	return harvest.FetchResponse{StatusCode: http.StatusOK, Body: []byte(body)}
}

func TestFetchPageBuildsNewestPageQuery(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{resp: okPage(`{"data":[]}`)}
	p, err := New(f, Config{SearchURL: "https://search.test/submission"})
	require.NoError(t, err)

	items, err := p.FetchPage(context.Background(), "jokes", harvest.NoWatermark())
	require.NoError(t, err)
	require.Empty(t, items)
	require.NotNil(t, items)

	require.Len(t, f.requests, 1)
	u, err := url.Parse(f.requests[0].URL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "jokes", q.Get("subreddit"))
	require.Equal(t, "500", q.Get("size"))
	require.Equal(t, "desc", q.Get("sort"))
	require.Equal(t, "created_utc", q.Get("sort_type"))
	require.False(t, q.Has("before"))
}

func TestFetchPageSendsWatermarkAsBefore(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{resp: okPage(`{"data":[]}`)}
	p, err := New(f, Config{SearchURL: "https://search.test/submission", BatchSize: 25})
	require.NoError(t, err)

	_, err = p.FetchPage(context.Background(), "jokes", harvest.Below(100))
	require.NoError(t, err)

	u, err := url.Parse(f.requests[0].URL)
	require.NoError(t, err)
	require.Equal(t, "100", u.Query().Get("before"))
	require.Equal(t, "25", u.Query().Get("size"))
}

func TestFetchPageDecodesItems(t *testing.T) {
	t.Parallel()

	body := `{"data":[
		{"id":"a","author":"alice","title":"first","created_utc":300,"selftext":"hello"},
		{"id":"b","author":"bob","title":"pic","created_utc":200.0,"media":null},
		{"id":"c","author":"[deleted]","title":"[removed]","created_utc":"100","media":{"type":"v"}}
	]}`
	p, err := New(&fakeFetcher{resp: okPage(body)}, Config{})
	require.NoError(t, err)

	items, err := p.FetchPage(context.Background(), "jokes", harvest.NoWatermark())
	require.NoError(t, err)
	require.Len(t, items, 3)

	require.Equal(t, "a", items[0].ID)
	require.Equal(t, int64(300), items[0].CreatedUTC)
	require.NotNil(t, items[0].Body)
	require.Equal(t, "hello", *items[0].Body)
	require.False(t, items[0].HasMedia)

	require.Equal(t, int64(200), items[1].CreatedUTC)
	require.Nil(t, items[1].Body)
	require.True(t, items[1].HasMedia, "media key present even when null")

	require.Equal(t, int64(100), items[2].CreatedUTC)
	require.True(t, items[2].HasMedia)
	require.Equal(t, harvest.RemovedTitle, items[2].Title)
}

func TestFetchPageErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		fetcher   *fakeFetcher
		transport bool
	}{
		"transport failure": {
			fetcher:   &fakeFetcher{err: errors.New("dial tcp: timeout")},
			transport: true,
		},
		"non success status": {
			fetcher:   &fakeFetcher{resp: harvest.FetchResponse{StatusCode: http.StatusTooManyRequests}},
			transport: true,
		},
		"not json": {
			fetcher: &fakeFetcher{resp: okPage(`<html>maintenance</html>`)},
		},
		"missing data": {
			fetcher: &fakeFetcher{resp: okPage(`{"error":"x"}`)},
		},
		"item without id": {
			fetcher: &fakeFetcher{resp: okPage(`{"data":[{"title":"t","created_utc":1}]}`)},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p, err := New(tc.fetcher, Config{})
			require.NoError(t, err)

			_, err = p.FetchPage(context.Background(), "jokes", harvest.NoWatermark())
			require.Error(t, err)
			require.True(t, harvest.IsRetryable(err))

			var transportErr *harvest.TransportError
			var protocolErr *harvest.ProtocolError
			if tc.transport {
				require.ErrorAs(t, err, &transportErr)
			} else {
				require.ErrorAs(t, err, &protocolErr)
			}
		})
	}
}

func TestFetchPageRequiresSubject(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{resp: okPage(`{"data":[]}`)}
	p, err := New(f, Config{})
	require.NoError(t, err)

	_, err = p.FetchPage(context.Background(), "  ", harvest.NoWatermark())
	require.Error(t, err)
	require.Empty(t, f.requests)
}

func TestNewRequiresFetcher(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{})
	require.Error(t, err)
}
