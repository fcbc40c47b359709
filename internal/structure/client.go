// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package structure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/amoroz/coursetrace/internal/config"
	"github.com/amoroz/coursetrace/internal/logging"
	"github.com/amoroz/coursetrace/internal/metrics"
)

// maxErrorBodySize limits how much of an error response body is read for
// diagnostics.
const maxErrorBodySize = 64 * 1024

// Client is the HTTP implementation of Directory.
//
// Lookups are rate limited and guarded by a circuit breaker: the directory
// is an external service, and a slow or failing backend must degrade into
// per-event rejections rather than stall the whole pipeline on every
// record.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Item]
	limiter *rate.Limiter
}

// NewClient creates a directory client from configuration.
func NewClient(cfg *config.StructureConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}

	breaker := gobreaker.NewCircuitBreaker[*Item](gobreaker.Settings{
		Name:        "course-structure",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("structure client circuit breaker state change")
			metrics.StructureBreakerState.Set(breakerStateValue(to))
		},
		IsSuccessful: func(err error) bool {
			// A missing block is a data condition, not a service failure;
			// it must not open the circuit.
			return err == nil || errors.Is(err, ErrItemNotFound)
		},
	})

	return &Client{
		baseURL: cfg.URL,
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
		limiter: limiter,
	}
}

// GetItem looks up one course tree node.
func (c *Client) GetItem(ctx context.Context, id string) (*Item, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("structure lookup rate wait: %w", err)
		}
	}

	item, err := c.breaker.Execute(func() (*Item, error) {
		return c.fetchItem(ctx, id)
	})
	switch {
	case err == nil:
		metrics.StructureLookups.WithLabelValues("hit").Inc()
	case errors.Is(err, ErrItemNotFound):
		metrics.StructureLookups.WithLabelValues("miss").Inc()
	default:
		metrics.StructureLookups.WithLabelValues("error").Inc()
	}
	return item, err
}

// fetchItem performs the raw HTTP lookup.
func (c *Client) fetchItem(ctx context.Context, id string) (*Item, error) {
	endpoint := fmt.Sprintf("%s/api/v1/blocks/%s", c.baseURL, url.PathEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build structure request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("structure lookup failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		// fallthrough to decode
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, fmt.Errorf("structure lookup returned %d: %s", resp.StatusCode, body)
	}

	var item Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("failed to decode structure item: %w", err)
	}
	if item.ID == "" {
		item.ID = id
	}
	return &item, nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
