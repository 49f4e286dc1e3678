package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 64 << 10

// HTTPClient is a Summarizer that posts to a remote /api/summary endpoint.
type HTTPClient struct {
	endpoint string
	http     *http.Client
}

// NewHTTPClient returns a client for endpoint. A nil http.Client means
// http.DefaultClient.
func NewHTTPClient(endpoint string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = http.DefaultClient
	}

	return &HTTPClient{
		endpoint: endpoint,
		http:     hc,
	}
}

// Summarize implements Summarizer. A 503 flagged as fallback maps to
// ErrNotConfigured; any other non-2xx answer is a *RemoteError.
func (c *HTTPClient) Summarize(ctx context.Context,
	req Request) (Response, error) {

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.endpoint, bytes.NewReader(body),
	)
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("post summary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb ErrorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(raw, &eb)

		if resp.StatusCode == http.StatusServiceUnavailable &&
			eb.Fallback {

			return Response{}, ErrNotConfigured
		}

		return Response{}, &RemoteError{
			Status:  resp.StatusCode,
			Message: eb.Error,
		}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}

	return out, nil
}

var _ Summarizer = (*HTTPClient)(nil)
