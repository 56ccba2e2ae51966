// Package api handles communication with an OpenAI-compatible
// chat-completion endpoint, in both request/response and streaming mode.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ads/ads-cli/internal/config"
)

const defaultTimeout = 60 * time.Second

// Client communicates with a chat-completion endpoint.
type Client struct {
	cfg *config.Config

	// httpClient serves the request/response path and is bounded by
	// defaultTimeout. streamClient carries no overall deadline: a
	// streaming exchange legitimately runs as long as generation does.
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a client for the endpoint named in cfg.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		streamClient: &http.Client{},
	}
}

func (c *Client) buildRequest(question string, stream bool) chatRequest {
	return chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: c.cfg.SystemPrompt},
			{Role: "user", Content: question},
		},
		Stream: stream,
	}
}

// RequestJSON builds the outbound request body without sending it.
func (c *Client) RequestJSON(question string, stream bool) ([]byte, error) {
	return json.Marshal(c.buildRequest(question, stream))
}

func (c *Client) newRequest(ctx context.Context, question string, stream bool) (*http.Request, error) {
	body, err := json.Marshal(c.buildRequest(question, stream))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	return req, nil
}

// Chat sends question and returns the complete answer with its token usage.
func (c *Client) Chat(ctx context.Context, question string) (*Response, error) {
	req, err := c.newRequest(ctx, question, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not reach %s: %w", c.cfg.BaseURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		msg := parsed.Error.Message
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("API error: %s", msg)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("response contains no choices")
	}

	out := &Response{Content: strings.TrimSpace(parsed.Choices[0].Message.Content)}
	if parsed.Usage != nil {
		out.Usage = *parsed.Usage
	}
	return out, nil
}
