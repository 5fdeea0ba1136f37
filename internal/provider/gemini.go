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

// Google Generative Language API constants.
const (
	// DefaultGeminiURL is the base URL for the Gemini API.
	DefaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultGeminiModel is the model used for chat responses.
	DefaultGeminiModel = "gemini-1.5-flash"
)

// GeminiClient talks to the Google generateContent API. Free tier makes
// it the cheapest backend, and it is also the fastest.
type GeminiClient struct {
	apiKey  string
	baseURL string
	model   string
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: DefaultGeminiURL,
		model:   DefaultGeminiModel,
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *GeminiClient) WithBaseURL(url string) *GeminiClient {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithModel sets the model identifier.
func (c *GeminiClient) WithModel(model string) *GeminiClient {
	c.model = model
	return c
}

// IsConfigured returns true if the client has an API key.
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}

// geminiContent is one turn in the generateContent format.
type geminiContent struct {
	Role  string `json:"role,omitempty"`
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

func geminiTurn(role, text string) geminiContent {
	c := geminiContent{Role: role}
	c.Parts = []struct {
		Text string `json:"text"`
	}{{Text: text}}
	return c
}

// geminiRequest is the generateContent request body.
type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
		Temperature     float64 `json:"temperature,omitempty"`
	} `json:"generationConfig"`
}

// geminiResponse is the generateContent response body.
type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate implements Generator against the generateContent API.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (*Result, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("gemini: %w", ErrNotConfigured)
	}

	contents := make([]geminiContent, 0, len(req.Entries))
	for _, e := range req.Entries {
		// Gemini uses "model" where everyone else says "assistant".
		role := "user"
		if e.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiTurn(role, e.Content))
	}

	body := geminiRequest{Contents: contents}
	if req.SystemPrompt != "" {
		sys := geminiTurn("", req.SystemPrompt)
		body.SystemInstruction = &sys
	}
	body.GenerationConfig.MaxOutputTokens = req.MaxTokens
	body.GenerationConfig.Temperature = req.Temperature

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := sharedHTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()
	log.Printf("API Response: gemini %d (%v)", resp.StatusCode, time.Since(start))

	respBody, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var parsed geminiResponse
		msg := ""
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, statusError("gemini", resp.StatusCode, msg)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return nil, &APIError{Backend: "gemini", Status: resp.StatusCode, Message: "no candidates in response"}
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	return &Result{
		Text:         text.String(),
		InputTokens:  parsed.UsageMetadata.PromptTokenCount,
		OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
	}, nil
}
