// Package assist answers free-text questions about a video's metadata and
// thumbnail through an OpenAI-compatible chat completions API.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tubegrab/tubegrab/internal/source"
)

// Client talks to the chat completions endpoint.
type Client struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

func NewClient(apiKey, model, endpoint string, timeout time.Duration) *Client {
	return &Client{
		apiKey:     apiKey,
		model:      model,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type request struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Answer asks one question about the given video, attaching the thumbnail
// as an image part when the source provided one.
func (c *Client) Answer(ctx context.Context, meta *source.Metadata, question string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("assist is not configured")
	}

	prompt := fmt.Sprintf(`You are a YouTube content strategy expert.
Analyze the provided thumbnail and video metadata.
Video Details:
- Title: %q
- Description: %q
- Tags: [%s]
User question: %q
Provide a helpful, concise, and actionable answer.`,
		meta.Title, meta.Description, strings.Join(meta.Keywords, ", "), question)

	parts := []contentPart{{Type: "text", Text: prompt}}
	if meta.Thumbnail != "" {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: meta.Thumbnail}})
	}

	body, err := json.Marshal(request{
		Model:    c.model,
		Messages: []message{{Role: "user", Content: parts}},
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling assist api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("assist api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("assist api returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
