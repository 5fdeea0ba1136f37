// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// Anthropic API constants.
const (
	// DefaultClaudeURL is the base URL for the Anthropic API.
	DefaultClaudeURL = "https://api.anthropic.com/v1"

	// DefaultClaudeModel is the model used for chat responses.
	DefaultClaudeModel = "claude-3-5-haiku-20241022"

	// anthropicVersion is the required API version header value.
	anthropicVersion = "2023-06-01"
)

// ClaudeClient talks to the Anthropic messages API. It is the only
// vision-capable backend.
type ClaudeClient struct {
	apiKey  string
	baseURL string
	model   string
}

// NewClaudeClient creates a Claude client. An empty API key is allowed;
// Generate will fail with ErrNotConfigured.
func NewClaudeClient(apiKey string) *ClaudeClient {
	return &ClaudeClient{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: DefaultClaudeURL,
		model:   DefaultClaudeModel,
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *ClaudeClient) WithBaseURL(url string) *ClaudeClient {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithModel sets the model identifier.
func (c *ClaudeClient) WithModel(model string) *ClaudeClient {
	c.model = model
	return c
}

// IsConfigured returns true if the client has an API key.
func (c *ClaudeClient) IsConfigured() bool {
	return c.apiKey != ""
}

// claudeContentBlock is one block of a message's content.
type claudeContentBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Source *struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"source,omitempty"`
}

// claudeMessage is one turn in the messages API format.
type claudeMessage struct {
	Role    string               `json:"role"`
	Content []claudeContentBlock `json:"content"`
}

// claudeRequest is the messages API request body.
type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	Messages    []claudeMessage `json:"messages"`
}

// claudeResponse is the messages API response body.
type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate implements Generator against the Anthropic messages API.
func (c *ClaudeClient) Generate(ctx context.Context, req Request) (*Result, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("claude: %w", ErrNotConfigured)
	}

	messages := make([]claudeMessage, 0, len(req.Entries))
	for _, e := range req.Entries {
		role := e.Role
		if role != "assistant" {
			role = "user"
		}
		messages = append(messages, claudeMessage{
			Role:    role,
			Content: []claudeContentBlock{{Type: "text", Text: e.Content}},
		})
	}

	// Attach the image to the newest user turn.
	if req.ImageURL != "" && len(messages) > 0 {
		last := &messages[len(messages)-1]
		block := claudeContentBlock{Type: "image"}
		block.Source = &struct {
			Type string `json:"type"`
			URL  string `json:"url"`
		}{Type: "url", URL: req.ImageURL}
		last.Content = append(last.Content, block)
	}

	body, err := json.Marshal(claudeRequest{
		Model:       c.model,
		MaxTokens:   req.MaxTokens,
		System:      req.SystemPrompt,
		Temperature: req.Temperature,
		Messages:    messages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := sharedHTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("claude request failed: %w", err)
	}
	defer resp.Body.Close()
	log.Printf("API Response: claude %d (%v)", resp.StatusCode, time.Since(start))

	respBody, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var parsed claudeResponse
		msg := ""
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, statusError("claude", resp.StatusCode, msg)
	}

	var parsed claudeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Result{
		Text:         text.String(),
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}
