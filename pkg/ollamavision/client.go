// Package ollamavision implements the vision client on top of the Ollama
// API, passing the strict response schema through the chat Format field.
package ollamavision

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/album-cataloger/pkg/client"
)

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
	model  string
}

// NewClient creates a new Ollama-backed vision client
func NewClient(ollamaURL, model string) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	// Base URL only; paths like /api/chat are added by the SDK
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{
		client: api.NewClient(baseURL, http.DefaultClient),
		model:  model,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// StructuredQuery sends one schema-constrained chat request and returns the
// raw response text.
func (c *Client) StructuredQuery(ctx context.Context, sr client.StructuredRequest) (string, error) {
	// Add a timeout if the context doesn't carry one (vision models on CPU
	// can be slow)
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	imgBytes, err := base64.StdEncoding.DecodeString(sr.ImageB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 image: %w", err)
	}

	messages := []api.Message{}
	if sr.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: sr.System})
	}
	messages = append(messages, api.Message{
		Role:    "user",
		Content: strings.Join(sr.UserParts, "\n\n"),
		Images:  []api.ImageData{api.ImageData(imgBytes)},
	})

	streamFalse := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &streamFalse,
		Format:   sr.Schema,
		Options: map[string]any{
			"temperature": sr.Temperature,
		},
	}

	var responseContent string
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent = resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}
	return responseContent, nil
}
