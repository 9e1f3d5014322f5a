// Package client talks to a running kanilla server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
)

const (
	envServerURL = "KANILLA_SERVER_URL"

	defaultServerURL = "http://localhost:8000"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL, falling back to KANILLA_SERVER_URL and
// then the default local address.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = os.Getenv(envServerURL)
	}
	if baseURL == "" {
		baseURL = defaultServerURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Ask posts question to /ask and decodes the answer.
func (c *Client) Ask(ctx context.Context, question string) (*models.AnswerRecord, error) {
	return c.post(ctx, "/ask", map[string]string{"question": question})
}

// Query posts prompt to /rag/query and decodes the answer.
func (c *Client) Query(ctx context.Context, prompt string) (*models.AnswerRecord, error) {
	return c.post(ctx, "/rag/query", map[string]string{"prompt": prompt})
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*models.AnswerRecord, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	return DecodeAnswer(respBody)
}

// DecodeAnswer normalises the response shapes servers of this API have used:
// the canonical {"answer", "sources"} object, the same object nested under
// "answer", the older {"answer", "filename", "filepath"} object and a bare
// JSON string.
func DecodeAnswer(data []byte) (*models.AnswerRecord, error) {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		return &models.AnswerRecord{Answer: bare, Sources: []string{}}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if nested, ok := obj["answer"]; ok && len(nested) > 0 && nested[0] == '{' {
		if err := json.Unmarshal(nested, &obj); err != nil {
			return nil, fmt.Errorf("failed to parse nested answer: %w", err)
		}
	}

	record := &models.AnswerRecord{Sources: []string{}}
	if raw, ok := obj["answer"]; ok {
		if err := json.Unmarshal(raw, &record.Answer); err != nil {
			record.Answer = string(raw)
		}
	}
	if record.Answer == "" {
		return nil, fmt.Errorf("unexpected response: %s", string(data))
	}

	if raw, ok := obj["sources"]; ok {
		var sources []string
		if err := json.Unmarshal(raw, &sources); err == nil && sources != nil {
			record.Sources = sources
		}
	}
	if len(record.Sources) == 0 {
		var filename string
		if raw, ok := obj["filename"]; ok && json.Unmarshal(raw, &filename) == nil && filename != "" {
			record.Sources = []string{filename}
		}
	}
	return record, nil
}
