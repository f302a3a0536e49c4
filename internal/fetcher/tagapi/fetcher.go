// Package tagapi implements the rate-limited client for the upstream
// tag API.
package tagapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/chainintel/tagcrawler/internal/crawler"
	"github.com/chainintel/tagcrawler/internal/metrics"
)

// Config captures endpoint, credentials and pacing for the API client.
type Config struct {
	BaseURL   string
	UserAgent string

	// Fixed credentials the upstream expects on every request.
	Payload   string
	Timestamp string
	Session   string

	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	RateLimitDelay time.Duration
	// RequestDelay is slept after every successful call. It is part of
	// the contract with the upstream, not an optimization knob.
	RequestDelay time.Duration
}

// Fetcher issues one request per (tag, page) with transient retries
// and rate-limit cooldowns.
type Fetcher struct {
	client *http.Client
	cfg    Config
	logger *zap.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRateLimited
	outcomeRetryable
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeRateLimited:
		return "rate_limited"
	default:
		return "retryable"
	}
}

// FetchPage retrieves one page for a tag. A rate-limit response (429)
// triggers a cooldown and a re-attempt of the same page without
// consuming the transient-retry budget; any other failure consumes it.
// An error return means the budget is exhausted and the caller should
// stop processing this tag.
func (f *Fetcher) FetchPage(ctx context.Context, tagID string, page int) (crawler.Page, error) {
	if tagID == "" {
		return crawler.Page{}, errors.New("tag id is required")
	}
	if page < 1 {
		return crawler.Page{}, fmt.Errorf("page must be >= 1, got %d", page)
	}

	retries := 0
	for {
		if err := ctx.Err(); err != nil {
			return crawler.Page{}, err
		}

		pg, result, attemptErr := f.attempt(ctx, tagID, page)
		metrics.ObserveFetchAttempt(result.String())

		switch result {
		case outcomeSuccess:
			// Pause between requests to respect upstream limits.
			if err := f.sleep(ctx, f.cfg.RequestDelay); err != nil {
				return crawler.Page{}, err
			}
			return pg, nil

		case outcomeRateLimited:
			f.logger.Warn("rate limited by upstream, cooling down",
				zap.String("tag", tagID),
				zap.Int("page", page),
				zap.Duration("cooldown", f.cfg.RateLimitDelay),
			)
			metrics.ObserveRateLimitWait(f.cfg.RateLimitDelay)
			if err := f.sleep(ctx, f.cfg.RateLimitDelay); err != nil {
				return crawler.Page{}, err
			}
			// A 429 is pacing, not failure: the budget starts over.
			retries = 0

		case outcomeRetryable:
			retries++
			if retries >= f.cfg.MaxRetries {
				return crawler.Page{}, fmt.Errorf(
					"fetch tag %s page %d after %d attempts: %w",
					tagID, page, retries, attemptErr,
				)
			}
			f.logger.Warn("fetch attempt failed, retrying",
				zap.String("tag", tagID),
				zap.Int("page", page),
				zap.Int("attempt", retries),
				zap.Int("max_retries", f.cfg.MaxRetries),
				zap.Error(attemptErr),
			)
			if err := f.sleep(ctx, f.cfg.RetryDelay); err != nil {
				return crawler.Page{}, err
			}
		}
	}
}

func (f *Fetcher) attempt(ctx context.Context, tagID string, page int) (crawler.Page, outcome, error) {
	endpoint := fmt.Sprintf("%s/tag/top?tag=%s&page=%d",
		f.cfg.BaseURL, url.QueryEscape(tagID), page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return crawler.Page{}, outcomeRetryable, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	if f.cfg.Payload != "" {
		req.Header.Set("X-Payload", f.cfg.Payload)
	}
	if f.cfg.Timestamp != "" {
		req.Header.Set("X-Timestamp", f.cfg.Timestamp)
	}
	req.AddCookie(&http.Cookie{Name: "is_authed", Value: "true"})
	if f.cfg.Session != "" {
		req.AddCookie(&http.Cookie{Name: "platform_session", Value: f.cfg.Session})
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return crawler.Page{}, outcomeRetryable, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return crawler.Page{}, outcomeRateLimited, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return crawler.Page{}, outcomeRetryable,
			fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return crawler.Page{}, outcomeRetryable, fmt.Errorf("read body: %w", err)
	}

	pg, err := parsePage(body, page)
	if err != nil {
		// A malformed body is treated like any transient upstream
		// defect: retried, then the tag is given up.
		return crawler.Page{}, outcomeRetryable, err
	}
	metrics.ObservePageFetched()
	return pg, outcomeSuccess, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
