// Package client is a small Go SDK for calling a running clowdy engine's
// HTTP surface: direct function invocation and invocation history lookup.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client calls a clowdy engine's HTTP gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting baseURL, e.g. "http://127.0.0.1:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 45 * time.Second},
	}
}

// InvokeResult mirrors the Direct Invoker's response envelope.
type InvokeResult struct {
	Success      bool            `json:"success"`
	Output       json.RawMessage `json:"output,omitempty"`
	Error        string          `json:"error,omitempty"`
	DurationMS   int64           `json:"duration_ms"`
	InvocationID string          `json:"invocation_id"`
}

// Invoke calls /invoke/{functionID} with a {"input": input} JSON request
// body. A nil input sends no body, which the engine treats as an empty
// object input.
func (c *Client) Invoke(functionID string, input any) (*InvokeResult, error) {
	var body io.Reader
	if input != nil {
		raw, err := json.Marshal(map[string]any{"input": input})
		if err != nil {
			return nil, fmt.Errorf("client: marshaling input: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/invoke/"+functionID, body)
	if err != nil {
		return nil, fmt.Errorf("client: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: invoking %s: %w", functionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("client: invoke %s returned %d: %s", functionID, resp.StatusCode, string(raw))
	}

	var out InvokeResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("client: decoding response: %w", err)
	}
	return &out, nil
}

// InvocationRecord mirrors a stored invocation as the gateway returns it
// from GET /functions/{functionID}/invocations.
type InvocationRecord struct {
	ID         string `json:"id"`
	FunctionID string `json:"function_id"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Source     string `json:"source"`
	CreatedAt  string `json:"created_at"`
}

// ListInvocations calls GET /functions/{functionID}/invocations, optionally
// bounded by limit (0 means the server's default).
func (c *Client) ListInvocations(functionID string, limit int) ([]InvocationRecord, error) {
	url := c.baseURL + "/functions/" + functionID + "/invocations"
	if limit > 0 {
		url += "?limit=" + strconv.Itoa(limit)
	}

	resp, err := c.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("client: listing invocations for %s: %w", functionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("client: list invocations returned %d: %s", resp.StatusCode, string(raw))
	}

	var out []InvocationRecord
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("client: decoding invocations: %w", err)
	}
	return out, nil
}
