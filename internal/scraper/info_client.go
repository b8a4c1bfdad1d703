package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// InfoClient talks to the per-item JSON info endpoint.
type InfoClient struct {
	BaseURL string
	Client  *http.Client
	Retry   retryPolicy
}

func NewInfoClient(baseURL string) *InfoClient {
	return &InfoClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 15 * time.Second},
		Retry:   defaultRetryPolicy(),
	}
}

// Fetch returns the info record for one work. (nil, nil) means the endpoint
// has no record, which is common for delisted works and not an error.
// Rate limits and server errors go through the shared retry policy; access
// denial is permanent and surfaces immediately.
func (c *InfoClient) Fetch(ctx context.Context, productID string) (*InfoResponse, error) {
	var result *InfoResponse

	err := c.Retry.do(ctx, func() error {
		info, err := c.fetchOnce(ctx, productID)
		if err != nil {
			return err
		}
		result = info
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("info %s: %w", productID, err)
	}
	return result, nil
}

func (c *InfoClient) fetchOnce(ctx context.Context, productID string) (*InfoResponse, error) {
	url := c.BaseURL + "/maniax/api/=/product.json?workno=" + productID

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	setAPIHeaders(req, c.BaseURL)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, retryableErr("request: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("access denied (status 403)")
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, retryableErr("rate limited (status 429)")
	case resp.StatusCode >= 500:
		return nil, retryableErr("server error (status %d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retryableErr("read body: %v", err)
	}

	// the endpoint answers with a one-element array
	var arr []InfoResponse
	if err := json.Unmarshal(body, &arr); err != nil {
		return nil, fmt.Errorf("decode info response: %w", err)
	}
	if len(arr) == 0 {
		return nil, nil
	}

	info := arr[0]
	if info.Workno == "" {
		return nil, nil
	}
	return &info, nil
}
