package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/septapod/agentmapper/internal/web"
)

const (
	// defaultDaemonURL matches the daemon's default listen address.
	defaultDaemonURL = "http://localhost:8080"

	// requestTimeout bounds one API call. Insight generation dominates.
	requestTimeout = 90 * time.Second
)

// errNotFound is returned for 404 answers.
var errNotFound = errors.New("not found")

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status   int
	Message  string
	Fallback bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return errNotFound
	}

	return nil
}

// Client calls the workshopd HTTP API.
type Client struct {
	base string
	hc   *http.Client
}

// NewClient returns a client for the daemon at base.
func NewClient(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: requestTimeout}
	}

	return &Client{base: strings.TrimRight(base, "/"), hc: hc}
}

// getClient builds a client from the --daemon flag.
func getClient() *Client {
	base := daemonURL
	if env := os.Getenv("WORKSHOP_DAEMON"); env != "" &&
		base == defaultDaemonURL {

		base = env
	}

	return NewClient(base, nil)
}

// do sends a request and decodes a JSON answer into out when out is
// non-nil. A json.RawMessage in is sent as-is.
func (c *Client) do(ctx context.Context, method, path string, in,
	out any) error {

	var body io.Reader
	switch v := in.(type) {
	case nil:
	case json.RawMessage:
		body = bytes.NewReader(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("reach daemon at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{
			Status:  resp.StatusCode,
			Message: http.StatusText(resp.StatusCode),
		}

		var payload web.APIError
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Fallback = payload.Fallback
		}

		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}

	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// Insight fetches a stored-data insight: "exercise" with an id, "session"
// with a number, or "workshop".
func (c *Client) Insight(ctx context.Context, kind, id string,
	force bool) (web.InsightResponse, error) {

	path := "/api/v1/insights/" + kind
	if id != "" {
		path += "/" + url.PathEscape(id)
	}
	if force {
		path += "?force=true"
	}

	var resp web.InsightResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)

	return resp, err
}

// ClearCache drops cached insights, all of them when kind is empty.
func (c *Client) ClearCache(ctx context.Context, kind, id string) error {
	path := "/api/v1/insights/cache"
	if kind != "" {
		path += "/" + url.PathEscape(kind)
		if id != "" {
			path += "/" + url.PathEscape(id)
		}
	}

	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Records lists every stored record.
func (c *Client) Records(ctx context.Context) (web.RecordsResponse, error) {
	var resp web.RecordsResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/records", nil, &resp)

	return resp, err
}

// Record fetches one record.
func (c *Client) Record(ctx context.Context, id string) (json.RawMessage,
	error) {

	var raw json.RawMessage
	err := c.do(
		ctx, http.MethodGet, "/api/v1/records/"+url.PathEscape(id),
		nil, &raw,
	)

	return raw, err
}

// PutRecord stores doc under id.
func (c *Client) PutRecord(ctx context.Context, id string,
	doc json.RawMessage) error {

	return c.do(
		ctx, http.MethodPut, "/api/v1/records/"+url.PathEscape(id),
		doc, nil,
	)
}

// DeleteRecord removes one record.
func (c *Client) DeleteRecord(ctx context.Context, id string) error {
	return c.do(
		ctx, http.MethodDelete, "/api/v1/records/"+url.PathEscape(id),
		nil, nil,
	)
}

// SetOrgName renames the local organization.
func (c *Client) SetOrgName(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPut, "/api/v1/org", map[string]string{
		"name": name,
	}, nil)
}

// SyncStatus reports the sync state.
func (c *Client) SyncStatus(ctx context.Context) (web.SyncStatus, error) {
	var resp web.SyncStatus
	err := c.do(ctx, http.MethodGet, "/api/v1/sync", nil, &resp)

	return resp, err
}

// SyncNow pushes immediately.
func (c *Client) SyncNow(ctx context.Context) (web.SyncStatus, error) {
	var resp web.SyncStatus
	err := c.do(ctx, http.MethodPost, "/api/v1/sync/now", nil, &resp)

	return resp, err
}

// Connect creates a cloud organization and returns its id.
func (c *Client) Connect(ctx context.Context, orgName string) (string,
	error) {

	var resp struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/sync/connect",
		web.ConnectRequest{OrgName: orgName}, &resp)

	return resp.ID, err
}

// Load replaces local records with the cloud copy of orgID.
func (c *Client) Load(ctx context.Context, orgID string) (web.SyncStatus,
	error) {

	var resp web.SyncStatus
	err := c.do(ctx, http.MethodPost, "/api/v1/sync/load",
		web.LoadRequest{OrgID: orgID}, &resp)

	return resp, err
}

// Disconnect detaches from the cloud organization.
func (c *Client) Disconnect(ctx context.Context) (web.SyncStatus, error) {
	var resp web.SyncStatus
	err := c.do(ctx, http.MethodPost, "/api/v1/sync/disconnect", nil,
		&resp)

	return resp, err
}
