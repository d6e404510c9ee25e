// Package tasksource reads the task snapshot from the project backend and
// normalizes it into models.TaskRecord.
package tasksource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"project-alert-service/internal/apperr"
	"project-alert-service/internal/models"
)

// Client fetches tasks over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient returns a client for baseURL. timeout bounds every fetch.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient replaces the underlying transport client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type listResponse struct {
	Items []rawTask `json:"items"`
}

// Fetch returns the current snapshot, filtered to tenantID when non-empty.
// Transport failures, timeouts and 5xx responses are ErrTransientSource.
func (c *Client) Fetch(ctx context.Context, tenantID string) ([]models.TaskRecord, error) {
	u := c.baseURL + "/tasks"
	if tenantID != "" {
		u += "?tenant_id=" + url.QueryEscape(tenantID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build task request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrTransientSource, fmt.Errorf("failed to fetch tasks: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperr.Wrap(apperr.ErrTransientSource, fmt.Errorf("task source returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("task source returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload listResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, apperr.Wrap(apperr.ErrTransientSource, err)
		}
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}

	records := make([]models.TaskRecord, 0, len(payload.Items))
	for _, raw := range payload.Items {
		rec, ok := raw.normalize()
		if !ok {
			continue
		}
		if tenantID != "" && rec.TenantID == "" {
			rec.TenantID = tenantID
		}
		records = append(records, rec)
	}
	return records, nil
}
