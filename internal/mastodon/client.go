// Package mastodon is the narrow client used to resolve a pushed notification
// into the server's full notification object.
package mastodon

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

	"push_notify/internal/model"
)

// HTTPError represents a non-2xx response from the server.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err wraps an HTTPError with the given code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

type Client struct {
	httpClient *http.Client
	// scheme is "https" except in tests.
	scheme string
}

func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		scheme:     "https",
	}
}

// WithScheme overrides the scheme used to reach account servers.
func (c *Client) WithScheme(scheme string) *Client {
	c.scheme = scheme
	return c
}

// GetNotification fetches /api/v1/notifications/:id on the account's server
// with the account's own token.
func (c *Client) GetNotification(ctx context.Context, acc *model.Account, id int64) (*model.RemoteNotification, error) {
	if acc == nil {
		return nil, fmt.Errorf("mastodon.GetNotification: no account")
	}

	var n model.RemoteNotification
	path := "/api/v1/notifications/" + url.PathEscape(strconv.FormatInt(id, 10))
	if err := c.get(ctx, acc, path, &n); err != nil {
		return nil, fmt.Errorf("mastodon.GetNotification: %w", err)
	}
	if n.Account.ID == "" {
		return nil, fmt.Errorf("mastodon.GetNotification: notification has no account")
	}
	return &n, nil
}

func (c *Client) baseURL(acc *model.Account) (string, error) {
	server := strings.TrimSuffix(acc.Server, "/")
	if server == "" {
		return "", fmt.Errorf("account has no server")
	}
	if strings.Contains(server, "://") {
		return server, nil
	}
	return c.scheme + "://" + server, nil
}

func (c *Client) get(ctx context.Context, acc *model.Account, path string, out any) error {
	base, err := c.baseURL(acc)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if acc.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+acc.AccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
