// Package gateway implements the REST client for the feed API.
//
// The client (Client) talks to the product's read API for snapshots and
// user actions:
//   - ListNotifications: GET    /notifications        — paginated page + unread count
//   - ListActivity:      GET    /activity             — recent public trades
//   - MarkRead:          PATCH  /notifications/{id}   — mark one notification read
//   - MarkAllRead:       POST   /notifications/read-all
//   - DeleteNotification:DELETE /notifications/{id}
//
// Every request is rate-limited via per-category TokenBuckets, bounded by a
// request timeout, and automatically retried on 5xx errors. The feed layer
// treats snapshot responses purely as a reconciliation seed; user actions
// are fire-and-forget with optimistic local update left to the caller.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-feed/pkg/types"
)

const requestTimeout = 10 * time.Second

// Client is the feed REST API client.
// It wraps a resty HTTP client with rate limiting and retry.
type Client struct {
	http   *resty.Client
	rl     *RateLimiter
	logger *slog.Logger
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		rl:     NewRateLimiter(),
		logger: logger.With("component", "gateway"),
	}
}

// ListNotifications fetches one page of a wallet's notifications plus the
// authoritative unread count.
func (c *Client) ListNotifications(ctx context.Context, address string, limit, offset int) (*types.NotificationList, error) {
	if err := c.rl.List.Wait(ctx); err != nil {
		return nil, err
	}

	var result types.NotificationList
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("address", address).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetQueryParam("offset", strconv.Itoa(offset)).
		SetResult(&result).
		Get("/notifications")
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("list notifications: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// ListActivity fetches the most recent public trades.
func (c *Client) ListActivity(ctx context.Context, limit int) ([]types.ActivityItem, error) {
	if err := c.rl.List.Wait(ctx); err != nil {
		return nil, err
	}

	var result []types.ActivityItem
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&result).
		Get("/activity")
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("list activity: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}

// MarkRead marks a single notification as read.
func (c *Client) MarkRead(ctx context.Context, address, id string) error {
	if err := c.rl.Action.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("address", address).
		SetBody(map[string]bool{"read": true}).
		Patch("/notifications/" + id)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		return fmt.Errorf("mark read: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// MarkAllRead marks every notification for the wallet as read.
func (c *Client) MarkAllRead(ctx context.Context, address string) error {
	if err := c.rl.Action.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("address", address).
		Post("/notifications/read-all")
	if err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		return fmt.Errorf("mark all read: status %d: %s", resp.StatusCode(), resp.String())
	}
	c.logger.Info("all notifications marked read", "address", address)
	return nil
}

// DeleteNotification removes a notification server-side.
func (c *Client) DeleteNotification(ctx context.Context, address, id string) error {
	if err := c.rl.Action.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("address", address).
		Delete("/notifications/" + id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		return fmt.Errorf("delete notification: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
