package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// APIPrefix is where the cloud routes are mounted.
const APIPrefix = "/api/cloud/v1"

// maxResponseBody bounds a snapshot download.
const maxResponseBody = 32 << 20

// StatusError is an unexpected answer from the cloud host.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cloud: unexpected status %d", e.Status)
	}

	return fmt.Sprintf("cloud: status %d: %s", e.Status, e.Message)
}

// Client is a Backend reached over HTTP with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for the host at baseURL. A nil http.Client
// means http.DefaultClient.
func NewClient(baseURL, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    hc,
	}
}

// CreateOrganization implements Backend.
func (c *Client) CreateOrganization(ctx context.Context,
	name string) (string, error) {

	var out createOrgResponse
	err := c.do(
		ctx, http.MethodPost, "/orgs", createOrgRequest{Name: name}, &out,
	)
	if err != nil {
		return "", fmt.Errorf("create organization: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("create organization: empty id")
	}

	return out.ID, nil
}

// PushSnapshot implements Backend.
func (c *Client) PushSnapshot(ctx context.Context, orgID string,
	snap Snapshot) error {

	err := c.do(ctx, http.MethodPut, snapshotPath(orgID), snap, nil)
	if err != nil {
		return fmt.Errorf("push snapshot: %w", err)
	}

	return nil
}

// PullSnapshot implements Backend.
func (c *Client) PullSnapshot(ctx context.Context,
	orgID string) (Snapshot, error) {

	var snap Snapshot
	err := c.do(ctx, http.MethodGet, snapshotPath(orgID), nil, &snap)
	if err != nil {
		return Snapshot{}, fmt.Errorf("pull snapshot: %w", err)
	}

	return snap.Clone(), nil
}

func snapshotPath(orgID string) string {
	return "/orgs/" + url.PathEscape(orgID) + "/snapshot"
}

// do sends in as JSON, if set, and decodes the answer into out, if set.
func (c *Client) do(ctx context.Context, method, path string, in,
	out any) error {

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(
		ctx, method, c.baseURL+APIPrefix+path, body,
	)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseBody)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrOrgNotFound

	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		var e errorResponse
		_ = json.NewDecoder(limited).Decode(&e)

		return &StatusError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

var _ Backend = (*Client)(nil)
