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

// OpenAI-compatible endpoint constants.
const (
	// DefaultGroqURL is the base URL for the Groq API.
	DefaultGroqURL = "https://api.groq.com/openai/v1"

	// DefaultGroqModel is the model used for chat responses on Groq.
	DefaultGroqModel = "llama-3.1-8b-instant"

	// DefaultOpenRouterURL is the base URL for the OpenRouter API.
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

	// DefaultOpenRouterModel lets OpenRouter pick the model.
	DefaultOpenRouterModel = "openrouter/auto"
)

// OpenAIClient speaks the OpenAI-compatible chat completions protocol.
// Groq and OpenRouter both expose it, so one client covers both.
type OpenAIClient struct {
	name     string
	apiKey   string
	baseURL  string
	model    string
	siteURL  string
	siteName string
}

// NewGroqClient creates a client for the Groq API.
func NewGroqClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		name:    "groq",
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: DefaultGroqURL,
		model:   DefaultGroqModel,
	}
}

// NewOpenRouterClient creates a client for the OpenRouter API.
func NewOpenRouterClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		name:     "openrouter",
		apiKey:   strings.TrimSpace(apiKey),
		baseURL:  DefaultOpenRouterURL,
		model:    DefaultOpenRouterModel,
		siteURL:  "https://chatrelay.local",
		siteName: "chatrelay",
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *OpenAIClient) WithBaseURL(url string) *OpenAIClient {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithModel sets the model identifier.
func (c *OpenAIClient) WithModel(model string) *OpenAIClient {
	c.model = model
	return c
}

// IsConfigured returns true if the client has an API key.
func (c *OpenAIClient) IsConfigured() bool {
	return c.apiKey != ""
}

// chatMessage is one turn in the chat completions format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the chat completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatResponse is the chat completions response body.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate implements Generator against the chat completions endpoint.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Result, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("%s: %w", c.name, ErrNotConfigured)
	}

	messages := make([]chatMessage, 0, len(req.Entries)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, e := range req.Entries {
		role := e.Role
		if role != "assistant" && role != "system" {
			role = "user"
		}
		messages = append(messages, chatMessage{Role: role, Content: e.Content})
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.siteURL != "" {
		httpReq.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		httpReq.Header.Set("X-Title", c.siteName)
	}

	start := time.Now()
	resp, err := sharedHTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.name, err)
	}
	defer resp.Body.Close()
	log.Printf("API Response: %s %d (%v)", c.name, resp.StatusCode, time.Since(start))

	respBody, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var parsed chatResponse
		msg := ""
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, statusError(c.name, resp.StatusCode, msg)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, &APIError{Backend: c.name, Status: resp.StatusCode, Message: "no choices in response"}
	}

	return &Result{
		Text:         parsed.Choices[0].Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}
