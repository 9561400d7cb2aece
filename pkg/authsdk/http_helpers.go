package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// url resolves path against the configured base URL.
func (c *Client) url(path string) string {
	return c.store.Config().URL(path)
}

// doRequest sends a request to path with in encoded as the JSON body. A nil
// in sends no body.
func (c *Client) doRequest(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// readBody drains the response and returns a typed error for non-2xx
// statuses.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if err := parseErrorResponse(resp, body); err != nil {
		return body, err
	}
	return body, nil
}

// call performs a JSON request and decodes a successful response into out.
// A nil out discards the body.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.doRequest(ctx, method, path, in)
	if err != nil {
		return err
	}

	body, err := readBody(resp)
	if err != nil {
		return err
	}
	return decodeJSON(body, out)
}

func decodeJSON(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
