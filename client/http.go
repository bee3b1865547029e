package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 32 << 20 // 32 MB

// APIError is a non-success response from the node.
type APIError struct {
	Status  int    // Status is the HTTP status code
	Message string // Message is the node's error message, if any
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// do sends a request and returns the body of a response with status want.
func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, want int) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request:\n%w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s:\n%w", method, url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body:\n%w", method, url, err)
	}

	if resp.StatusCode != want {
		return nil, decodeAPIError(resp.StatusCode, data)
	}

	return data, nil
}

// decodeAPIError builds an APIError from an {"error": "..."} body.
func decodeAPIError(status int, body []byte) *APIError {
	var payload struct {
		Error string `json:"error"`
	}

	apiErr := &APIError{Status: status}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Message = payload.Error
	}

	return apiErr
}

// httpGet performs a GET request and decodes the JSON response.
func (c *Client) httpGet(ctx context.Context, path string, result any) error {
	data, err := c.do(ctx, http.MethodGet, path, "", nil, http.StatusOK)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, result)
}

// httpPostJSON performs a POST request with a JSON body and decodes the JSON response.
func (c *Client) httpPostJSON(ctx context.Context, path string, body any, want int, result any) error {
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body:\n%w", err)
	}

	data, err := c.do(ctx, http.MethodPost, path, "application/json", jsonBytes, want)
	if err != nil {
		return err
	}

	if result == nil {
		return nil
	}

	return json.Unmarshal(data, result)
}
