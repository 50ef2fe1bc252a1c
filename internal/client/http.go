package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("pulsechat error %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("pulsechat error %d: %s", e.Status, e.Message)
}

// NewHTTPClient returns the client used when none is supplied.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

type apiClient struct {
	baseURL string
	http    *http.Client
	token   string
}

func (c *apiClient) doRequest(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// decodeError understands both {"error": "..."} and
// {"error": {"code": "...", "message": "..."}} bodies.
func decodeError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return apiErr
	}

	var flat string
	if err := json.Unmarshal(envelope.Error, &flat); err == nil {
		apiErr.Message = flat
		return apiErr
	}

	var nested struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &nested); err == nil {
		apiErr.Code = nested.Code
		if nested.Message != "" {
			apiErr.Message = nested.Message
		}
	}
	return apiErr
}
