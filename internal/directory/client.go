// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

/*
Package directory queries the external block-directory service for the
inverse relation the firehose cannot provide: who blocks a given account.

The directory is an anonymous read-only HTTP API with fixed-size pages and
its own rate limiting; its data is eventually consistent and treated as
advisory. Rows that fail validation are dropped rather than failing the
whole page.
*/
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/haianhng/skymirror/internal/platform/apperr"
)

const (
	requestTimeout = 30 * time.Second

	// retryCount and retryBaseDelay govern 429 handling. The directory's
	// budget is separate from the AT Protocol service's, so the directory
	// client backs off on its own instead of going through the governor.
	retryCount     = 3
	retryBaseDelay = 5 * time.Second
)

var didPattern = regexp.MustCompile(`^did:[a-z]+:[a-zA-Z0-9._:%-]+$`)

// Entry is one directory row: an account that blocks the queried subject.
type Entry struct {
	DID         string `json:"did"`
	BlockedDate string `json:"blocked_date"`
}

// Client is a read-only client for the block-directory API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryDelay time.Duration
}

// NewClient returns a Client rooted at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		retryDelay: retryBaseDelay,
	}
}

// totalResponse mirrors the directory's count envelope.
type totalResponse struct {
	Data struct {
		Count int64 `json:"count"`
	} `json:"data"`
}

// pageResponse mirrors the directory's page envelope.
type pageResponse struct {
	Data struct {
		Blocklist []Entry `json:"blocklist"`
	} `json:"data"`
}

// Total returns the directory's count of accounts blocking the actor.
//
// The count and the paged listing are maintained independently upstream, so
// callers must tolerate small disagreements between the two.
func (client *Client) Total(ctx context.Context, actor string) (int64, error) {
	endpoint := fmt.Sprintf("%s/single-blocklist/total/%s", client.baseURL, url.PathEscape(actor))

	var parsed totalResponse
	if err := client.getJSON(ctx, endpoint, &parsed); err != nil {
		return 0, err
	}

	return parsed.Data.Count, nil
}

// Page returns one fixed-size page of accounts blocking the actor. Pages are
// 1-based; a page past the end returns an empty slice.
//
// Rows with a malformed DID or missing blocked_date are skipped.
func (client *Client) Page(ctx context.Context, actor string, page int) ([]Entry, error) {
	endpoint := fmt.Sprintf("%s/single-blocklist/%s/%d", client.baseURL, url.PathEscape(actor), page)

	var parsed pageResponse
	if err := client.getJSON(ctx, endpoint, &parsed); err != nil {
		if apperr.IsNotFound(err) {
			// Past the last page.
			return nil, nil
		}
		return nil, err
	}

	entries := make([]Entry, 0, len(parsed.Data.Blocklist))
	for _, entry := range parsed.Data.Blocklist {
		if !didPattern.MatchString(entry.DID) || entry.BlockedDate == "" {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// getJSON fetches endpoint into out, retrying 429s with doubling backoff.
func (client *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	delay := client.retryDelay

	for attempt := 0; ; attempt++ {
		err := client.getOnce(ctx, endpoint, out)
		if err == nil {
			return nil
		}
		if !apperr.IsRateLimited(err) || attempt >= retryCount {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

func (client *Client) getOnce(ctx context.Context, endpoint string, out any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return apperr.Permanent("directory_request_build_failed", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return apperr.Transient("directory_request_failed", err)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusOK:
	case response.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, response.Body)
		return apperr.RateLimited("directory_rate_limited", nil)
	case response.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, response.Body)
		return apperr.NotFound("Directory page")
	case response.StatusCode >= 500:
		io.Copy(io.Discard, response.Body)
		return apperr.Transient(fmt.Sprintf("directory_upstream_error_%d", response.StatusCode), nil)
	default:
		io.Copy(io.Discard, response.Body)
		return apperr.Permanent(fmt.Sprintf("directory_unexpected_status_%d", response.StatusCode), nil)
	}

	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return apperr.Transient("directory_decode_failed", err)
	}

	return nil
}
