// Package openai talks to the OpenAI completions API, or any server that
// speaks the same protocol.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/asfreeas-aatto/aatto/internal/ai"
)

var ErrMissingKey = errors.New("missing OPENAI_API_KEY")

type Client struct {
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	http        *http.Client
}

var _ ai.Provider = (*Client)(nil)

func New(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &Client{
		APIKey:      apiKey,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Temperature: 0.9,
		MaxTokens:   300,
		http:        &http.Client{Timeout: 20 * time.Second},
	}
}

func (c *Client) Complete(ctx context.Context, model string, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, model, "", prompt)
}

func (c *Client) CompleteWithSystem(ctx context.Context, model string, systemPrompt string, prompt string) (string, error) {
	if c.APIKey == "" {
		return "", ErrMissingKey
	}
	if systemPrompt == "" {
		systemPrompt = ai.SystemPrompt
	}
	if isChatModel(model) {
		return c.chat(ctx, model, systemPrompt, prompt)
	}
	return c.text(ctx, model, systemPrompt+"\n\n"+prompt)
}

func isChatModel(model string) bool {
	return strings.Contains(model, "gpt") || strings.HasPrefix(model, "o")
}

func (c *Client) chat(ctx context.Context, model, systemPrompt, prompt string) (string, error) {
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	err := c.post(ctx, "/v1/chat/completions", map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": c.Temperature,
		"max_tokens":  c.MaxTokens,
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", ai.ErrNoCompletion
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (c *Client) text(ctx context.Context, model, prompt string) (string, error) {
	var out struct {
		Choices []struct {
			Text string `json:"text"`
		} `json:"choices"`
	}
	err := c.post(ctx, "/v1/completions", map[string]any{
		"model":       model,
		"prompt":      prompt,
		"temperature": c.Temperature,
		"max_tokens":  c.MaxTokens,
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", ai.ErrNoCompletion
	}
	return strings.TrimSpace(out.Choices[0].Text), nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("openai status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
