package tagapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const samplePage = `{
	"addresses": [
		{"address": "0xabc", "chain": "ethereum", "entityName": "Acme", "entityType": "exchange",
		 "tags": [{"id": "exchange", "label": "Exchange"}]},
		{"address": "0xdef", "entity": {"name": "Widget", "type": "fund"},
		 "populatedTags": ["defi"]}
	],
	"hasMore": true
}`

type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return nil
}

func newTestFetcher(t *testing.T, baseURL string) (*Fetcher, *recordingSleeper) {
	t.Helper()
	f := New(Config{
		BaseURL:        baseURL,
		UserAgent:      "tagcrawler-test/1.0",
		Payload:        "payload-token",
		Timestamp:      "1700000000",
		Session:        "session-token",
		Timeout:        5 * time.Second,
		MaxRetries:     3,
		RetryDelay:     7 * time.Second,
		RateLimitDelay: 60 * time.Second,
		RequestDelay:   time.Second,
	}, zap.NewNop())
	rec := &recordingSleeper{}
	f.sleep = rec.sleep
	return f, rec
}

func TestFetchPageSuccess(t *testing.T) {
	t.Parallel()

	var gotURL string
	var gotPayload string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		gotPayload = r.Header.Get("X-Payload")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f, rec := newTestFetcher(t, srv.URL)
	pg, err := f.FetchPage(context.Background(), "exchange", 1)
	require.NoError(t, err)

	require.Equal(t, "/tag/top?tag=exchange&page=1", gotURL)
	require.Equal(t, "payload-token", gotPayload)
	require.True(t, pg.HasMore)
	require.Len(t, pg.Addresses, 2)

	first := pg.Addresses[0]
	require.Equal(t, "0xabc", first.Address)
	require.Equal(t, "ethereum", first.Chain)
	require.Equal(t, "Acme", first.EntityName)
	require.Len(t, first.Tags, 1)
	require.Equal(t, "Exchange", first.Tags[0].Label)

	second := pg.Addresses[1]
	require.Equal(t, "unknown", second.Chain)
	require.Equal(t, "Widget", second.EntityName)
	require.Equal(t, "fund", second.EntityType)
	require.Len(t, second.Tags, 1)
	require.Equal(t, "defi", second.Tags[0].ID)
	require.Equal(t, "defi", second.Tags[0].Label)

	// Exactly one inter-request pause after the successful call.
	require.Equal(t, []time.Duration{time.Second}, rec.sleeps)
}

func TestFetchPageRetriesThenFails(t *testing.T) {
	t.Parallel()

	var attempts int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f, rec := newTestFetcher(t, srv.URL)
	_, err := f.FetchPage(context.Background(), "exchange", 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "after 3 attempts")

	mu.Lock()
	require.Equal(t, 3, attempts)
	mu.Unlock()

	// Two retry delays between the three attempts, no request delay.
	require.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second}, rec.sleeps)
}

func TestFetchPageRateLimitDoesNotConsumeRetryBudget(t *testing.T) {
	t.Parallel()

	var attempts int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f, rec := newTestFetcher(t, srv.URL)
	pg, err := f.FetchPage(context.Background(), "exchange", 4)
	require.NoError(t, err)
	require.Len(t, pg.Addresses, 2)

	mu.Lock()
	require.Equal(t, 3, attempts)
	mu.Unlock()

	// Two cooldowns then the inter-request pause; no transient retry
	// delay was ever taken.
	require.Equal(t,
		[]time.Duration{60 * time.Second, 60 * time.Second, time.Second},
		rec.sleeps,
	)
}

func TestFetchPageMalformedBodyIsRetryable(t *testing.T) {
	t.Parallel()

	var attempts int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		_, _ = w.Write([]byte(`{"addresses": not-json`))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t, srv.URL)
	_, err := f.FetchPage(context.Background(), "exchange", 1)
	require.Error(t, err)

	mu.Lock()
	require.Equal(t, 3, attempts)
	mu.Unlock()
}

func TestFetchPageInputValidation(t *testing.T) {
	t.Parallel()

	f, _ := newTestFetcher(t, "http://127.0.0.1:0")
	_, err := f.FetchPage(context.Background(), "", 1)
	require.Error(t, err)

	_, err = f.FetchPage(context.Background(), "exchange", 0)
	require.Error(t, err)
}

func TestFetchPageStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f, _ := newTestFetcher(t, "http://127.0.0.1:0")
	_, err := f.FetchPage(ctx, "exchange", 1)
	require.ErrorIs(t, err, context.Canceled)
}
