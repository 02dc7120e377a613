// Package api fetches message history over the backend's REST surface.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"kit-sync/internal/logger"
	"kit-sync/internal/model"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUnexpectedStatus = errors.New("unexpected status")
)

type MessagesResponse struct {
	Messages []model.Message `json:"messages"`
}

type Client struct {
	http *resty.Client
	log  *logger.Logger
}

func New(baseURL string, timeout time.Duration, token string, log *logger.Logger) (*Client, error) {
	base, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}

	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if token != "" {
		rc.SetAuthToken(token)
	}
	return &Client{http: rc, log: log}, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty address")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	if u.Host == "" {
		return "", errors.New("address must include a host")
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func historyPath(scope model.Scope) (string, error) {
	if !scope.Valid() {
		return "", fmt.Errorf("invalid scope %s", scope)
	}
	switch scope.Kind {
	case model.ScopeKit:
		return fmt.Sprintf("/v1/kits/%d/messages", scope.ID), nil
	default:
		return fmt.Sprintf("/v1/channels/%d/messages", scope.ID), nil
	}
}

// Messages returns the stored history of scope, oldest first.
func (c *Client) Messages(ctx context.Context, scope model.Scope) ([]model.Message, error) {
	path, err := historyPath(scope)
	if err != nil {
		return nil, err
	}

	var out MessagesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("fetch %s history: %w", scope, err)
	}
	if err := mapHTTPError(resp); err != nil {
		return nil, err
	}

	c.log.Debug().Str("scope", scope.String()).Int("count", len(out.Messages)).Msg("history fetched")
	return out.Messages, nil
}

func mapHTTPError(resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= http.StatusOK && code < http.StatusMultipleChoices {
		return nil
	}
	body := strings.TrimSpace(string(resp.Body()))
	if body == "" {
		body = http.StatusText(code)
	}
	if code == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrUnauthorized, body)
	}
	return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, code, body)
}
